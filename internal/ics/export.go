// Package ics exports what a display shows over the coming days as an
// iCalendar feed, so the content repository can be reviewed in any
// calendar app.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"pantallita/internal/model"
)

const productID = "-//pantallita//content preview//EN"

// Render serializes occurrences into an iCalendar document. stamp is used
// as DTSTAMP for every VEVENT.
func Render(occs []model.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Pantallita")

	for _, occ := range occs {
		ev := cal.AddEvent(occ.InstanceKey + "@pantallita")
		ev.SetDtStampTime(stamp)
		ev.SetSummary(occ.Summary)
		if occ.Description != "" {
			ev.SetDescription(occ.Description)
		}

		if occ.AllDay {
			ev.SetAllDayStartAt(occ.Start)
			ev.SetAllDayEndAt(occ.End)
		} else {
			ev.SetStartAt(occ.Start)
			ev.SetEndAt(occ.End)
		}

		ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(occ.Kind)))
		if occ.Image != "" {
			ev.SetProperty(ical.ComponentProperty("X-PANTALLITA-IMAGE"), occ.Image)
		}
		if occ.Color != "" {
			ev.SetProperty(ical.ComponentProperty("X-PANTALLITA-COLOR"), string(occ.Color))
		}
		if occ.Progressbar {
			ev.SetProperty(ical.ComponentProperty("X-PANTALLITA-PROGRESSBAR"), "TRUE")
		}
	}

	return cal.Serialize()
}
