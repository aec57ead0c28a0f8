package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// FakeSurah is a chapter served by FakeQuranAPI.
type FakeSurah struct {
	Number         int
	Name           string
	EnglishName    string
	Translation    string
	Ayahs          int
	RevelationType string
}

// DefaultFakeSurahs are the chapters served when no WithSurahs option is given.
var DefaultFakeSurahs = []FakeSurah{
	{Number: 1, Name: "سُورَةُ ٱلْفَاتِحَةِ", EnglishName: "Al-Faatiha", Translation: "The Opening", Ayahs: 7, RevelationType: "Meccan"},
	{Number: 112, Name: "سُورَةُ الإِخۡلَاصِ", EnglishName: "Al-Ikhlaas", Translation: "Sincerity", Ayahs: 4, RevelationType: "Meccan"},
	{Number: 114, Name: "سُورَةُ النَّاسِ", EnglishName: "An-Naas", Translation: "Mankind", Ayahs: 6, RevelationType: "Meccan"},
}

// FakeQuranAPI mimics the alquran.cloud endpoints used by tilawa:
// /surah, /surah/{id}, /surah/{id}/{edition} and /ayah/{key}/{edition}.
//
// Ayah text is "{edition} {surah}:{ayah}". Editions registered with
// WithMarkupEdition wrap that text in HTML. Editions registered with
// WithAudioEdition carry an audio URL of "{base}/{edition}/{surah}_{ayah}.mp3".
type FakeQuranAPI struct {
	Server *httptest.Server

	RequestCount atomic.Int64

	mu            sync.Mutex
	surahs        map[int]FakeSurah
	audio         map[string]string
	markup        map[string]bool
	failAll       int
	failEditions  map[string]int
	requestByPath map[string]int
}

// FakeQuranAPIOption configures a FakeQuranAPI.
type FakeQuranAPIOption func(*FakeQuranAPI)

// WithSurahs replaces the served chapters.
func WithSurahs(surahs ...FakeSurah) FakeQuranAPIOption {
	return func(f *FakeQuranAPI) {
		f.surahs = make(map[int]FakeSurah, len(surahs))
		for _, s := range surahs {
			f.surahs[s.Number] = s
		}
	}
}

// WithAudioEdition marks edition as an audio edition whose files live under baseURL.
func WithAudioEdition(edition, baseURL string) FakeQuranAPIOption {
	return func(f *FakeQuranAPI) {
		f.audio[edition] = strings.TrimRight(baseURL, "/")
	}
}

// WithMarkupEdition makes edition return HTML-wrapped text.
func WithMarkupEdition(edition string) FakeQuranAPIOption {
	return func(f *FakeQuranAPI) {
		f.markup[edition] = true
	}
}

// WithEditionFailure makes every request for edition answer with status.
func WithEditionFailure(edition string, status int) FakeQuranAPIOption {
	return func(f *FakeQuranAPI) {
		f.failEditions[edition] = status
	}
}

// NewFakeQuranAPIT starts a FakeQuranAPI and skips the test if binding fails.
func NewFakeQuranAPIT(t *testing.T, opts ...FakeQuranAPIOption) *FakeQuranAPI {
	t.Helper()
	f := &FakeQuranAPI{
		audio:         make(map[string]string),
		markup:        make(map[string]bool),
		failEditions:  make(map[string]int),
		requestByPath: make(map[string]int),
	}
	WithSurahs(DefaultFakeSurahs...)(f)
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /surah", f.handleList)
	mux.HandleFunc("GET /surah/{id}", f.handleSurah)
	mux.HandleFunc("GET /surah/{id}/{edition}", f.handleSurah)
	mux.HandleFunc("GET /ayah/{key}/{edition}", f.handleAyah)

	f.Server = NewHTTPServerT(t, f.track(mux))
	return f
}

// URL returns the API base URL.
func (f *FakeQuranAPI) URL() string {
	return f.Server.URL
}

// Close shuts down the server.
func (f *FakeQuranAPI) Close() {
	if f.Server != nil {
		f.Server.Close()
	}
}

// SetFailure makes every request answer with status; zero restores service.
func (f *FakeQuranAPI) SetFailure(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = status
}

// SetEditionFailure changes per-edition failure injection; zero clears it.
func (f *FakeQuranAPI) SetEditionFailure(edition string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.failEditions, edition)
		return
	}
	f.failEditions[edition] = status
}

// Requests returns how many requests hit path (e.g. "/surah/1").
func (f *FakeQuranAPI) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestByPath[path]
}

// AudioFileName is the file name the fake assigns to a verse audio URL.
func AudioFileName(surah, ayah int) string {
	return fmt.Sprintf("%d_%d.mp3", surah, ayah)
}

func (f *FakeQuranAPI) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.RequestCount.Add(1)
		f.mu.Lock()
		f.requestByPath[r.URL.Path]++
		status := f.failAll
		f.mu.Unlock()

		if status != 0 {
			writeEnvelope(w, status, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeQuranAPI) editionFailure(edition string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failEditions[edition]
}

func (f *FakeQuranAPI) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	list := make([]map[string]any, 0, len(f.surahs))
	for _, s := range f.surahs {
		list = append(list, surahJSON(s))
	}
	f.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i]["number"].(int) < list[j]["number"].(int) })
	writeEnvelope(w, http.StatusOK, list)
}

func (f *FakeQuranAPI) handleSurah(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid surah")
		return
	}
	edition := r.PathValue("edition")
	if edition == "" {
		edition = "quran-uthmani"
	}
	if status := f.editionFailure(edition); status != 0 {
		writeEnvelope(w, status, nil)
		return
	}

	f.mu.Lock()
	s, ok := f.surahs[id]
	f.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, "Surah not found")
		return
	}

	body := surahJSON(s)
	ayahs := make([]map[string]any, 0, s.Ayahs)
	for n := 1; n <= s.Ayahs; n++ {
		ayahs = append(ayahs, f.ayahJSON(s, n, edition))
	}
	body["ayahs"] = ayahs
	body["edition"] = map[string]any{"identifier": edition}
	writeEnvelope(w, http.StatusOK, body)
}

func (f *FakeQuranAPI) handleAyah(w http.ResponseWriter, r *http.Request) {
	edition := r.PathValue("edition")
	if status := f.editionFailure(edition); status != 0 {
		writeEnvelope(w, status, nil)
		return
	}

	surahID, ayah, ok := parseVerseKey(r.PathValue("key"))
	if !ok {
		writeEnvelope(w, http.StatusBadRequest, "invalid verse key")
		return
	}

	f.mu.Lock()
	s, found := f.surahs[surahID]
	f.mu.Unlock()
	if !found || ayah > s.Ayahs {
		writeEnvelope(w, http.StatusNotFound, "Ayah not found")
		return
	}

	body := f.ayahJSON(s, ayah, edition)
	body["surah"] = surahJSON(s)
	writeEnvelope(w, http.StatusOK, body)
}

func (f *FakeQuranAPI) ayahJSON(s FakeSurah, n int, edition string) map[string]any {
	text := fmt.Sprintf("%s %d:%d", edition, s.Number, n)

	f.mu.Lock()
	markup := f.markup[edition]
	audioBase, isAudio := f.audio[edition]
	f.mu.Unlock()

	if markup {
		text = fmt.Sprintf("<p><b>%s</b> &amp; <i>notes</i></p>", text)
	}
	a := map[string]any{
		"number":        s.Number*1000 + n,
		"text":          text,
		"numberInSurah": n,
		"juz":           1,
		"page":          1,
		"edition":       map[string]any{"identifier": edition},
	}
	if isAudio {
		a["audio"] = fmt.Sprintf("%s/%s/%s", audioBase, edition, AudioFileName(s.Number, n))
	}
	return a
}

func surahJSON(s FakeSurah) map[string]any {
	return map[string]any{
		"number":                 s.Number,
		"name":                   s.Name,
		"englishName":            s.EnglishName,
		"englishNameTranslation": s.Translation,
		"numberOfAyahs":          s.Ayahs,
		"revelationType":         s.RevelationType,
	}
}

func parseVerseKey(key string) (int, int, bool) {
	left, right, found := strings.Cut(key, ":")
	if !found {
		return 0, 0, false
	}
	surah, err1 := strconv.Atoi(left)
	ayah, err2 := strconv.Atoi(right)
	if err1 != nil || err2 != nil || ayah < 1 {
		return 0, 0, false
	}
	return surah, ayah, true
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":   status,
		"status": http.StatusText(status),
		"data":   data,
	})
}
