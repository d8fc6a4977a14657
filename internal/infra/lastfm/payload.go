package lastfm

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

// list decodes a JSON array, a single object or an empty string into a slice.
// Last.fm collapses one-element results into a bare object.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	switch data[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
	case '{':
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*l = list[T]{item}
	case '"':
		// Empty collections are sometimes sent as "".
		*l = nil
	default:
		return errors.Newf("unexpected list payload: %.32s", data)
	}
	return nil
}

// number decodes integers sent either as JSON numbers or strings.
type number int

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}

// score decodes floats sent either as JSON numbers or strings.
type score float64

func (s *score) UnmarshalJSON(data []byte) error {
	v := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = score(f)
	return nil
}

// artistRef decodes an artist given either as a name string or an object.
type artistRef struct {
	Name string `json:"name"`
	MBID string `json:"mbid"`
	URL  string `json:"url"`
}

func (a *artistRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.Name)
	}
	type plain artistRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = artistRef(p)
	return nil
}

type image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// pickImage returns the image at the preferred index, or the largest available one.
func pickImage(images []image, preferred int) string {
	if preferred < len(images) && images[preferred].URL != "" {
		return images[preferred].URL
	}
	for i := len(images) - 1; i >= 0; i-- {
		if images[i].URL != "" {
			return images[i].URL
		}
	}
	return ""
}

type trackPayload struct {
	Name      string      `json:"name"`
	MBID      string      `json:"mbid"`
	URL       string      `json:"url"`
	Artist    artistRef   `json:"artist"`
	Duration  number      `json:"duration"`
	Listeners number      `json:"listeners"`
	Playcount number      `json:"playcount"`
	Match     score       `json:"match"`
	Image     list[image] `json:"image"`
}

type tagPayload struct {
	Name  string `json:"name"`
	Count number `json:"count"`
	Reach number `json:"reach"`
	URL   string `json:"url"`
}

type artistPayload struct {
	Name  string      `json:"name"`
	MBID  string      `json:"mbid"`
	URL   string      `json:"url"`
	Match score       `json:"match"`
	Image list[image] `json:"image"`
}

type searchResponse struct {
	Results struct {
		TrackMatches struct {
			Track list[trackPayload] `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

type similarTracksResponse struct {
	SimilarTracks struct {
		Track list[trackPayload] `json:"track"`
	} `json:"similartracks"`
}

type similarArtistsResponse struct {
	SimilarArtists struct {
		Artist list[artistPayload] `json:"artist"`
	} `json:"similarartists"`
}

type topTracksResponse struct {
	Tracks struct {
		Track list[trackPayload] `json:"track"`
	} `json:"tracks"`
}

type topTagsResponse struct {
	TopTags struct {
		Tag list[tagPayload] `json:"tag"`
	} `json:"toptags"`
}

type trackInfoResponse struct {
	Track *struct {
		Name      string    `json:"name"`
		MBID      string    `json:"mbid"`
		URL       string    `json:"url"`
		Duration  number    `json:"duration"` // milliseconds
		Listeners number    `json:"listeners"`
		Playcount number    `json:"playcount"`
		Artist    artistRef `json:"artist"`
		Album     *struct {
			Title string      `json:"title"`
			Image list[image] `json:"image"`
		} `json:"album"`
		TopTags struct {
			Tag list[tagPayload] `json:"tag"`
		} `json:"toptags"`
		Wiki *struct {
			Summary string `json:"summary"`
		} `json:"wiki"`
	} `json:"track"`
}

type artistInfoResponse struct {
	Artist *struct {
		Name  string      `json:"name"`
		MBID  string      `json:"mbid"`
		URL   string      `json:"url"`
		Image list[image] `json:"image"`
		Stats struct {
			Listeners number `json:"listeners"`
			Playcount number `json:"playcount"`
		} `json:"stats"`
		Similar struct {
			Artist list[artistPayload] `json:"artist"`
		} `json:"similar"`
		Tags struct {
			Tag list[tagPayload] `json:"tag"`
		} `json:"tags"`
		Bio struct {
			Summary string `json:"summary"`
		} `json:"bio"`
	} `json:"artist"`
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}
