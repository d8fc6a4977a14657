// Package main provides the user CLI entry point for testing.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/osa030/19dig/internal/domain/track"
)

var (
	app    = kingpin.New("19dig-usercli", "19dig discovery client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Bearer token").Envar("DIG_TOKEN").Required().String()
	limit  = app.Flag("limit", "Number of tracks").Default("20").Int()

	// search command
	searchCmd    = app.Command("search", "Search tracks")
	searchQuery  = searchCmd.Arg("query", "Search query").Required().String()
	searchSource = searchCmd.Flag("source", "all, spotify, lastfm or local").Default("all").String()

	// recommend command
	recommendCmd = app.Command("recommend", "Get personalized recommendations")

	// popular command
	popularCmd   = app.Command("popular", "Get popular tracks")
	popularGenre = popularCmd.Flag("genre", "Restrict to a genre").String()

	// genres command
	genresCmd = app.Command("genres", "List genres")

	// interact command
	interactCmd      = app.Command("interact", "Record an interaction")
	interactSong     = interactCmd.Arg("song-id", "Song ID").Required().String()
	interactAction   = interactCmd.Arg("action", "play, like or dislike").Required().Enum("play", "like", "dislike")
	interactDuration = interactCmd.Flag("duration", "Seconds listened (play only)").Default("0").Int()
	interactComplete = interactCmd.Flag("completed", "Whether the song was played to the end").Bool()

	// prefs command
	prefsCmd = app.Command("prefs", "Show stored preferences")
)

type trackList struct {
	Data  []track.Track `json:"data"`
	Total int           `json:"total"`
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))

	switch command {
	case searchCmd.FullCommand():
		q.Set("q", *searchQuery)
		q.Set("source", *searchSource)
		printTracks(ctx, "/search", q)
	case recommendCmd.FullCommand():
		printTracks(ctx, "/recommendations", q)
	case popularCmd.FullCommand():
		if *popularGenre != "" {
			q.Set("genre", *popularGenre)
		}
		printTracks(ctx, "/popular", q)
	case genresCmd.FullCommand():
		var resp struct {
			Data []struct {
				Name   string `json:"name"`
				Source string `json:"source"`
			} `json:"data"`
			Total int `json:"total"`
		}
		call(ctx, http.MethodGet, "/genres", nil, nil, &resp)
		for _, g := range resp.Data {
			fmt.Printf("  %-30s (%s)\n", g.Name, g.Source)
		}
		fmt.Printf("%d of %d genres\n", len(resp.Data), resp.Total)
	case interactCmd.FullCommand():
		var resp struct {
			Message string `json:"message"`
		}
		call(ctx, http.MethodPost, "/track-interaction", nil, map[string]any{
			"song_id":       *interactSong,
			"action":        *interactAction,
			"play_duration": *interactDuration,
			"completed":     *interactComplete,
		}, &resp)
		fmt.Println(resp.Message)
	case prefsCmd.FullCommand():
		var resp struct {
			Data json.RawMessage `json:"data"`
		}
		call(ctx, http.MethodGet, "/preferences", nil, nil, &resp)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
			fmt.Println(string(resp.Data))
			return
		}
		fmt.Println(pretty.String())
	}
}

func printTracks(ctx context.Context, path string, q url.Values) {
	var resp trackList
	call(ctx, http.MethodGet, path, q, nil, &resp)
	for i, t := range resp.Data {
		fmt.Printf("%3d. [%-7s] %s - %s (%ds)\n", i+1, t.Source, t.Artist, t.Name, t.Duration)
		if t.ExternalURL != "" {
			fmt.Printf("     %s\n", t.ExternalURL)
		}
	}
	fmt.Printf("%d tracks\n", resp.Total)
}

func call(ctx context.Context, method, path string, q url.Values, body, out any) {
	target := *server + "/api/v1/discover" + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fail(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		fail(err)
	}
	req.Header.Set("Authorization", "Bearer "+*token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}
	if resp.StatusCode >= 300 {
		fmt.Printf("Error: %s %s\n", resp.Status, string(data))
		os.Exit(1)
	}
	if err := json.Unmarshal(data, out); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
