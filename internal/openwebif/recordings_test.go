// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringOrNumberString_UnmarshalJSON(t *testing.T) {
	for raw, want := range map[string]string{`123456`: "123456", `"123456"`: "123456", `null`: "", `12.5`: "12.5"} {
		var s StringOrNumberString
		require.NoError(t, json.Unmarshal([]byte(raw), &s), raw)
		assert.Equal(t, want, string(s), raw)
	}
}

func TestIntOrStringInt64_UnmarshalJSON(t *testing.T) {
	for raw, want := range map[string]int64{`1700000000`: 1700000000, `"1700000000"`: 1700000000, `""`: 0, `null`: 0} {
		var v IntOrStringInt64
		require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
		assert.Equal(t, want, int64(v), raw)
	}

	var v IntOrStringInt64
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &v))
}

func TestBookmarkList_UnmarshalJSON(t *testing.T) {
	var bl BookmarkList

	require.NoError(t, json.Unmarshal([]byte(`[{"path":"/hdd/movie","name":"HDD"}]`), &bl))
	assert.Equal(t, BookmarkList{{Path: "/hdd/movie", Name: "HDD"}}, bl)

	require.NoError(t, json.Unmarshal([]byte(`["/hdd/movie"]`), &bl))
	assert.Equal(t, BookmarkList{{Path: "/hdd/movie", Name: "movie"}}, bl)

	require.NoError(t, json.Unmarshal([]byte(`""`), &bl))
	assert.Empty(t, bl)
}

func TestMovieList_TagsDecoded(t *testing.T) {
	body := `{"result":true,"directory":"/media/hdd/movie/","bookmarks":[],"movies":[
		{"serviceref":"1:0:0:0:0:0:0:0:0:0:/media/hdd/movie/x.ts","eventname":"Bulls vs Heat","recordingtime":"1700000000","filesize":123,"tags":"sportsdvr sportsdvr_sub_abc"}]}`
	var list MovieList
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Movies, 1)
	assert.True(t, hasTag(list.Movies[0].Tags, SubscriptionTag("abc")))
	assert.False(t, hasTag(list.Movies[0].Tags, SubscriptionTag("ab")))
	assert.Equal(t, "123", string(list.Movies[0].Filesize))
}
