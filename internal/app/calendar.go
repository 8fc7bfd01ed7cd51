package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"ratecard-service/internal/pricing"
	"ratecard-service/internal/ratecard"
)

// GoogleCalendarConfig holds OAuth2 configuration
type GoogleCalendarConfig struct {
	Config *oauth2.Config
}

// NewGoogleCalendarConfig returns nil unless all three settings are present.
func NewGoogleCalendarConfig(clientID, clientSecret, redirectURL string) *GoogleCalendarConfig {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &GoogleCalendarConfig{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}}
}

// GET /api/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.Calendar == nil {
		fail(c, http.StatusServiceUnavailable, "Google Calendar not configured")
		return
	}
	state := fmt.Sprintf("package_%s_%d", c.Query("package_id"), time.Now().Unix())
	url := a.Calendar.Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.JSON(http.StatusOK, gin.H{"success": true, "authUrl": url, "state": state})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.Calendar == nil {
		fail(c, http.StatusServiceUnavailable, "Google Calendar not configured")
		return
	}
	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, "authorization code required")
		return
	}
	token, err := a.Calendar.Config.Exchange(c.Request.Context(), code)
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to exchange code for token")
		return
	}
	// The client keeps the token and sends it back in X-Google-Token.
	tokenJSON, _ := json.Marshal(token)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   c.Query("state"),
		"token":   string(tokenJSON),
	})
}

// ScheduleEvent is one airing slot of a package on the calendar.
type ScheduleEvent struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// parseTimeRange reads "HH:MM - HH:MM". An end at or before the start wraps
// into the next day.
func parseTimeRange(day time.Time, r string) (start, end time.Time, ok bool) {
	from, to, found := strings.Cut(r, "-")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	f, err1 := time.Parse("15:04", strings.TrimSpace(from))
	t, err2 := time.Parse("15:04", strings.TrimSpace(to))
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	start = day.Add(time.Duration(f.Hour())*time.Hour + time.Duration(f.Minute())*time.Minute)
	end = day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}

// scheduleEvents lays out one event per schedule row and time class. Classes
// without a parseable time range become all-day events.
func scheduleEvents(pkg *ratecard.Package) []ScheduleEvent {
	classes := make(map[string]pricing.TimeClass, len(pkg.Data.TimeClasses))
	for _, tc := range pkg.Data.TimeClasses {
		classes[tc.ID] = tc
	}
	spotLen := pkg.Data.Selection.SpotLengthSec

	var events []ScheduleEvent
	for _, row := range pkg.Data.Rows {
		if row.Spots == 0 {
			continue
		}
		for _, id := range row.TimeClassIDs {
			tc, known := classes[id]
			label := id
			if known && tc.Label != "" {
				label = tc.Label
			}
			ev := ScheduleEvent{
				Summary:     fmt.Sprintf("%s: %d x %ds spot (%s)", pkg.ClientName, row.Spots, spotLen, label),
				Description: pkg.Notes,
			}
			if start, end, ok := parseTimeRange(row.Date, tc.TimeRange); known && ok {
				ev.Start, ev.End = start, end
			} else {
				ev.Start, ev.End, ev.AllDay = row.Date, row.Date.AddDate(0, 0, 1), true
			}
			events = append(events, ev)
		}
	}
	return events
}

func (e ScheduleEvent) toCalendar(tz string) *calendar.Event {
	out := &calendar.Event{Summary: e.Summary, Description: e.Description}
	if e.AllDay {
		out.Start = &calendar.EventDateTime{Date: e.Start.Format(pricing.DateLayout)}
		out.End = &calendar.EventDateTime{Date: e.End.Format(pricing.DateLayout)}
		return out
	}
	// Wall-clock times, interpreted in tz by Google.
	const layout = "2006-01-02T15:04:05"
	out.Start = &calendar.EventDateTime{DateTime: e.Start.Format(layout), TimeZone: tz}
	out.End = &calendar.EventDateTime{DateTime: e.End.Format(layout), TimeZone: tz}
	return out
}

// POST /api/packages/:id/calendar?calendar_id=primary&time_zone=UTC
func (a *App) PublishPackageHandler(c *gin.Context) {
	if a.Calendar == nil {
		fail(c, http.StatusServiceUnavailable, "Google Calendar not configured")
		return
	}
	tokenStr := c.GetHeader("X-Google-Token")
	if tokenStr == "" {
		fail(c, http.StatusBadRequest, "Google token required in X-Google-Token header")
		return
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenStr), &token); err != nil {
		fail(c, http.StatusBadRequest, "invalid token format")
		return
	}

	ctx := c.Request.Context()
	pkg, err := a.Store.GetPackage(ctx, c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(a.Calendar.Config.Client(ctx, &token)))
	if err != nil {
		a.respondError(c, fmt.Errorf("calendar service: %w", err))
		return
	}

	calendarID := c.DefaultQuery("calendar_id", "primary")
	tz := c.DefaultQuery("time_zone", "UTC")
	var ids []string
	for _, ev := range scheduleEvents(pkg) {
		created, err := srv.Events.Insert(calendarID, ev.toCalendar(tz)).Context(ctx).Do()
		if err != nil {
			a.Log.Warn("calendar insert failed",
				"rid", RID(c), "package", pkg.ID, "inserted", len(ids), "err", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"success":  false,
				"error":    fmt.Sprintf("failed to create event: %v", err),
				"eventIds": ids,
			})
			return
		}
		ids = append(ids, created.Id)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "eventIds": ids, "count": len(ids)})
}
