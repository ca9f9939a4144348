// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/log"
)

var _ dvr.TimerStore = (*Client)(nil)

// Tags written on timers this scheduler creates. The receiver copies timer
// tags onto the finished recording.
const (
	TagManaged      = "sportsdvr"
	tagSubPrefix    = "sportsdvr_sub_"
	tagPrioPrefix   = "sportsdvr_prio_"
	afterEventAuto  = "3"
	timerStateEnded = 3
)

// TimerEntry is one timer of /api/timerlist.
type TimerEntry struct {
	ServiceRef  string           `json:"serviceref"`
	ServiceName string           `json:"servicename"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Begin       IntOrStringInt64 `json:"begin"`
	End         IntOrStringInt64 `json:"end"`
	EIT         IntOrStringInt64 `json:"eit"`
	Tags        string           `json:"tags"`
	State       int              `json:"state"`
	Disabled    int              `json:"disabled"`
}

// TimerListResponse is the response of /api/timerlist.
type TimerListResponse struct {
	Result bool         `json:"result"`
	Timers []TimerEntry `json:"timers"`
}

// Response is the generic {result, message} answer of mutating endpoints.
type Response struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// MakeTimerID encodes the receiver's timer identity (service ref, begin, end).
func MakeTimerID(sRef string, begin, end int64) string {
	raw := fmt.Sprintf("%s|%d|%d", sRef, begin, end)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseTimerID decodes a MakeTimerID value.
func ParseTimerID(id string) (sRef string, begin, end int64, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", ErrInvalidTimerID, err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, ErrInvalidTimerID
	}
	if begin, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return "", 0, 0, fmt.Errorf("%w: begin: %v", ErrInvalidTimerID, err)
	}
	if end, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return "", 0, 0, fmt.Errorf("%w: end: %v", ErrInvalidTimerID, err)
	}
	return parts[0], begin, end, nil
}

// TimerTags returns the tag string written on a managed timer.
func TimerTags(subscriptionID string, priority int) string {
	tags := []string{TagManaged}
	if sanitized := sanitizeTag(subscriptionID); sanitized != "" {
		tags = append(tags, tagSubPrefix+sanitized)
	}
	tags = append(tags, tagPrioPrefix+strconv.Itoa(priority))
	return strings.Join(tags, " ")
}

// SubscriptionTag is the tag identifying recordings of a subscription.
func SubscriptionTag(subscriptionID string) string {
	return tagSubPrefix + sanitizeTag(subscriptionID)
}

func sanitizeTag(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

type tagInfo struct {
	managed        bool
	subscriptionID string
	priority       int
}

func parseTags(tags string) tagInfo {
	var info tagInfo
	for _, t := range strings.Fields(tags) {
		switch {
		case t == TagManaged:
			info.managed = true
		case strings.HasPrefix(t, tagSubPrefix):
			info.subscriptionID = strings.TrimPrefix(t, tagSubPrefix)
		case strings.HasPrefix(t, tagPrioPrefix):
			if n, err := strconv.Atoi(strings.TrimPrefix(t, tagPrioPrefix)); err == nil {
				info.priority = n
			}
		}
	}
	return info
}

// ListTimers returns all timers on the receiver. Finished timers are skipped.
func (c *Client) ListTimers(ctx context.Context) ([]dvr.Timer, error) {
	body, err := c.get(ctx, "/api/timerlist", nil, "timerlist", false)
	if err != nil {
		return nil, err
	}
	var resp TimerListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError("timerlist", err)
	}

	out := make([]dvr.Timer, 0, len(resp.Timers))
	for _, t := range resp.Timers {
		if t.State == timerStateEnded {
			continue
		}
		info := parseTags(t.Tags)
		timer := dvr.Timer{
			ID:             MakeTimerID(t.ServiceRef, int64(t.Begin), int64(t.End)),
			Name:           t.Name,
			ChannelID:      t.ServiceRef,
			ChannelName:    t.ServiceName,
			Start:          time.Unix(int64(t.Begin), 0).UTC(),
			End:            time.Unix(int64(t.End), 0).UTC(),
			Priority:       info.priority,
			Managed:        info.managed,
			SubscriptionID: info.subscriptionID,
		}
		if t.EIT > 0 {
			timer.ProgramID = ProgramID(t.ServiceRef, strconv.FormatInt(int64(t.EIT), 10))
		}
		out = append(out, timer)
	}
	return out, nil
}

// CreateTimer adds a recording timer for the program and returns its id.
func (c *Client) CreateTimer(ctx context.Context, req dvr.TimerRequest) (string, error) {
	p := req.Program
	sRef := p.ChannelID
	begin, end := p.Start.Unix(), p.End.Unix()

	params := url.Values{}
	params.Set("sRef", sRef)
	params.Set("begin", strconv.FormatInt(begin, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	params.Set("name", p.Title)
	params.Set("description", firstLine(p.Description))
	params.Set("tags", TimerTags(req.SubscriptionID, req.Priority))
	params.Set("afterevent", afterEventAuto)
	params.Set("disabled", "0")
	params.Set("justplay", "0")
	if eit := eventIDOf(p.ID); eit != "" {
		params.Set("eit", eit)
	}

	if err := c.mutate(ctx, "/api/timeradd", params, "timeradd"); err != nil {
		return "", forScheduler(err)
	}
	id := MakeTimerID(sRef, begin, end)
	c.loggerFor(ctx).Debug().
		Str(log.FieldEvent, "openwebif.timer_added").
		Str(log.FieldTimerID, id).
		Str(log.FieldProgramID, p.ID).
		Msg("timer added")
	return id, nil
}

// CancelTimer deletes the timer with the given id.
func (c *Client) CancelTimer(ctx context.Context, timerID string) error {
	sRef, begin, end, err := ParseTimerID(timerID)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("sRef", sRef)
	params.Set("begin", strconv.FormatInt(begin, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	return forScheduler(c.mutate(ctx, "/api/timerdelete", params, "timerdelete"))
}

// CancelAll deletes every pending timer on the receiver, managed or not, and
// returns how many were deleted.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	timers, err := c.ListTimers(ctx)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, t := range timers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.CancelTimer(ctx, t.ID); err != nil {
			if IsTimerNotFound(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("cancel %q: %w", t.Name, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (c *Client) mutate(ctx context.Context, path string, params url.Values, operation string) error {
	body, err := c.get(ctx, path, params, operation, false)
	if err != nil {
		return err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return decodeError(operation, err)
	}
	if !resp.Result {
		return timerRefusal(operation, resp.Message)
	}
	return nil
}

// eventIDOf extracts the numeric event id from a ProgramID value.
func eventIDOf(programID string) string {
	i := strings.LastIndexByte(programID, '#')
	if i < 0 {
		return ""
	}
	id := programID[i+1:]
	if _, err := strconv.ParseUint(id, 10, 32); err != nil {
		return ""
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
