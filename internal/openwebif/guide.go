// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/sportsdvr/internal/dvr"
)

var _ dvr.GuideSource = (*Client)(nil)

// DVB content nibble for "Sports" (EN 300 468, content_nibble_level_1).
const genreSports = 0x4

// Service is one entry of /api/getallservices.
type Service struct {
	Name        string    `json:"servicename"`
	Ref         string    `json:"servicereference"`
	SubServices []Service `json:"subservices"`
}

// ServicesResponse is the response of /api/getallservices.
type ServicesResponse struct {
	Services []Service `json:"services"`
}

// EPGEvent is one event of /api/epgservice.
type EPGEvent struct {
	ID        StringOrNumberString `json:"id"`
	Title     string               `json:"title"`
	ShortDesc string               `json:"shortdesc"`
	LongDesc  string               `json:"longdesc"`
	Begin     IntOrStringInt64     `json:"begin_timestamp"`
	Duration  IntOrStringInt64     `json:"duration_sec"`
	SRef      string               `json:"sref"`
	SName     string               `json:"sname"`
	Genre     string               `json:"genre"`
	GenreID   IntOrStringInt64     `json:"genreid"`
}

// EPGResponse is the response of /api/epgservice.
type EPGResponse struct {
	Events []EPGEvent `json:"events"`
	Result bool       `json:"result"`
}

// ProgramID builds the guide-wide program id from a service reference and an
// event id. Event ids are only unique per service.
func ProgramID(sRef, eventID string) string {
	return sRef + "#" + eventID
}

// ListChannels returns every TV service across bouquets, de-duplicated by
// service reference. Markers and bouquet headers are skipped.
func (c *Client) ListChannels(ctx context.Context) ([]dvr.Channel, error) {
	body, err := c.get(ctx, "/api/getallservices", nil, "getallservices", false)
	if err != nil {
		return nil, err
	}
	var resp ServicesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError("getallservices", err)
	}

	seen := make(map[string]bool)
	out := make([]dvr.Channel, 0)
	add := func(s Service) {
		ref := strings.TrimSpace(s.Ref)
		if ref == "" || isMarker(ref) || seen[ref] {
			return
		}
		seen[ref] = true
		out = append(out, dvr.Channel{ID: ref, Name: strings.TrimSpace(s.Name)})
	}
	for _, b := range resp.Services {
		if len(b.SubServices) == 0 {
			add(b)
			continue
		}
		for _, s := range b.SubServices {
			add(s)
		}
	}
	return out, nil
}

// isMarker reports service references that are not tunable channels.
func isMarker(ref string) bool {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) < 2 {
		return true
	}
	flags, err := strconv.ParseInt(parts[1], 16, 64)
	if err != nil {
		return false
	}
	// 0x40 is a marker, 0x07 a bouquet directory.
	return flags&0x40 != 0 || flags&0x07 == 0x07
}

// ListPrograms returns the events of a service overlapping [from, to).
func (c *Client) ListPrograms(ctx context.Context, channelID string, from, to time.Time) ([]dvr.Program, error) {
	params := url.Values{}
	params.Set("sRef", channelID)
	params.Set("time", strconv.FormatInt(from.Unix(), 10))
	params.Set("endTime", strconv.FormatInt(int64(to.Sub(from)/time.Minute), 10))

	body, err := c.get(ctx, "/api/epgservice", params, "epgservice", true)
	if err != nil {
		return nil, err
	}
	var resp EPGResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError("epgservice", err)
	}

	out := make([]dvr.Program, 0, len(resp.Events))
	for _, ev := range resp.Events {
		p, ok := eventToProgram(ev, channelID)
		if !ok {
			continue
		}
		if !p.End.After(from) || !p.Start.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func eventToProgram(ev EPGEvent, channelID string) (dvr.Program, bool) {
	if ev.Begin <= 0 || ev.Duration <= 0 || strings.TrimSpace(ev.Title) == "" {
		return dvr.Program{}, false
	}
	sRef := ev.SRef
	if sRef == "" {
		sRef = channelID
	}
	id := string(ev.ID)
	if id == "" {
		id = fmt.Sprintf("t%d", int64(ev.Begin))
	}

	start := time.Unix(int64(ev.Begin), 0).UTC()
	desc := strings.TrimSpace(ev.ShortDesc)
	if long := strings.TrimSpace(ev.LongDesc); long != "" {
		if desc == "" {
			desc = long
		} else if long != desc {
			desc += "\n" + long
		}
	}

	p := dvr.Program{
		ID:               ProgramID(sRef, id),
		Title:            strings.TrimSpace(ev.Title),
		ChannelID:        sRef,
		ChannelName:      strings.TrimSpace(ev.SName),
		Start:            start,
		End:              start.Add(time.Duration(ev.Duration) * time.Second),
		Description:      desc,
		IsSportsCategory: int64(ev.GenreID)>>4 == genreSports,
		IsLive:           isLiveTitle(ev.Title),
	}
	if g := strings.TrimSpace(ev.Genre); g != "" {
		p.Genres = []string{g}
	}
	return p, true
}

func isLiveTitle(title string) bool {
	t := strings.ToLower(title)
	return strings.HasPrefix(t, "live:") || strings.HasPrefix(t, "live ") || strings.Contains(t, "(live)")
}
