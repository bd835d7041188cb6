package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/drewfead/berlinale/internal/commands"
)

const fixtureDir = "../../testdata/fixtures"

func serveFixture(t *testing.T, name string) string {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(fixtureDir, name))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("base_url: %s\ndelay: 0s\n", srv.URL)), 0o644))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := commands.NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(context.Background(), append([]string{"berlinale"}, args...))
	return out.String(), err
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Test_Unit_Usage(t *testing.T) {
	out, err := run(t)

	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, "<output.json>")
}

func Test_Unit_Scrape_AllFields(t *testing.T) {
	cfgPath := serveFixture(t, "entry_full.html")
	outPath := filepath.Join(t.TempDir(), "programme.json")

	_, err := run(t, "--config", cfgPath, outPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"movie\": {\n      \"id\": 202012345,"))
	assert.Contains(t, string(raw), "Jérôme Müller")
	assert.Contains(t, string(raw), "Ondine – Die Nixe")

	var events []map[string]any
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, []string{"ical", "info", "location", "movie", "ticket", "ticket_code", "ticket_info", "time"}, keys(event))
	assert.Equal(t, "2020-02-23T09:05:00Z+01", event["time"])
	assert.Equal(t, "Berlinale Palast", event["location"])
	assert.Equal(t, "Tickets", event["ticket_info"])

	movie, ok := event["movie"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{
		"country", "description", "event", "id", "image", "info", "lang",
		"length", "section", "staff", "title", "title2", "url", "year",
	}, keys(movie))
	assert.Equal(t, float64(90), movie["length"])
	assert.Equal(t, float64(2020), movie["year"])
}

func Test_Unit_Scrape_OptionalFieldsAbsent(t *testing.T) {
	cfgPath := serveFixture(t, "entry_minimal.html")
	outPath := filepath.Join(t.TempDir(), "programme.json")

	_, err := run(t, "--config", cfgPath, outPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Len(t, events, 1)

	assert.Equal(t, []string{"location", "movie", "ticket_info", "time"}, keys(events[0]))
	movie, ok := events[0]["movie"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"description", "id", "image", "section", "title", "url"}, keys(movie))
}

func Test_Unit_Scrape_ICS(t *testing.T) {
	cfgPath := serveFixture(t, "entry_full.html")
	outPath := filepath.Join(t.TempDir(), "programme.ics")

	_, err := run(t, "--config", cfgPath, "--output", "ics", outPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "BEGIN:VCALENDAR\r\n"))
	assert.Equal(t, 1, strings.Count(string(raw), "BEGIN:VEVENT"))
	assert.Contains(t, string(raw), "DTSTART:20200223T080500Z")
}

func Test_Unit_Scrape_UnsupportedFormat(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "programme.xml")

	_, err := run(t, "--output", "xml", outPath)
	assert.EqualError(t, err, "unsupported output format xml")
	assert.NoFileExists(t, outPath)
}

func Test_Unit_Scrape_MalformedPageWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<ul class="pagination"><li class="pg__separator">…</li><li><a>1</a></li></ul>
<section class="film-entry"><div class="row"></div></section>`)
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("base_url: "+srv.URL+"\n"), 0o644))
	outPath := filepath.Join(t.TempDir(), "programme.json")

	_, err := run(t, "--config", cfgPath, "--delay", "0s", outPath)
	assert.Error(t, err)
	assert.NoFileExists(t, outPath)
}

func Test_Unit_Scrape_LogFile(t *testing.T) {
	cfgPath := serveFixture(t, "entry_minimal.html")
	dir := t.TempDir()
	logPath := filepath.Join(dir, "scrape.log")

	_, err := run(t, "--config", cfgPath, "--log-file", logPath, filepath.Join(dir, "out.json"))
	require.NoError(t, err)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "scraped programme")
	assert.Contains(t, string(raw), "run_id")
}
