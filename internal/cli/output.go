package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/service"
)

// printer formats command results as text or JSON.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

func (p *printer) print(data any) {
	if p.format == "json" {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(data)
		return
	}

	switch v := data.(type) {
	case *model.User:
		fmt.Fprintf(p.w, "ID:       %s\n", v.ID)
		fmt.Fprintf(p.w, "Username: %s\n", v.Username)
		fmt.Fprintf(p.w, "Created:  %s\n", v.CreatedAt.Format("2006-01-02 15:04:05"))
	case service.PurgeResult:
		fmt.Fprintf(p.w, "Expired login sessions removed: %d\n", v.Sessions)
		fmt.Fprintf(p.w, "Expired blacklist entries removed: %d\n", v.BlacklistedJTIs)
	default:
		fmt.Fprintln(p.w, v)
	}
}

func (p *printer) message(msg string) {
	if p.format == "json" {
		p.print(map[string]string{"message": msg})
		return
	}
	fmt.Fprintln(p.w, msg)
}
