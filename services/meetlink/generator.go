// Package meetlink produces meeting room codes of the form xxx-xxxx-xxx.
package meetlink

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"demobook/models"
)

const (
	letters      = "abcdefghijklmnopqrstuvwxyz"
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	delimiter    = "-"

	DefaultBaseURL = "https://meet.google.com/"
)

var codePattern = regexp.MustCompile(`^[a-z]{3}-[a-z0-9]{4}-[a-z]{3}$`)

// Generator builds meeting links under a fixed base URL.
type Generator struct {
	baseURL string
	intn    func(n int) int
}

func NewGenerator(baseURL string) *Generator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Generator{baseURL: baseURL, intn: rand.IntN}
}

// Generate returns a fresh link for bookingID. It performs no I/O.
func (g *Generator) Generate(bookingID string) (models.MeetingLink, error) {
	if strings.TrimSpace(bookingID) == "" {
		return models.MeetingLink{}, models.NewError(models.KindInvalidArgument, "booking id is required to generate a meeting link")
	}

	var b strings.Builder
	b.Grow(12)
	g.group(&b, letters, 3)
	b.WriteString(delimiter)
	g.group(&b, alphanumeric, 4)
	b.WriteString(delimiter)
	g.group(&b, letters, 3)

	code := b.String()
	return models.MeetingLink{Code: code, URL: g.baseURL + code}, nil
}

func (g *Generator) group(b *strings.Builder, alphabet string, n int) {
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[g.intn(len(alphabet))])
	}
}

// Valid reports whether code has the xxx-xxxx-xxx shape.
func Valid(code string) bool {
	return codePattern.MatchString(code)
}
