package links

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// Browser opens a URL for the user
type Browser interface {
	Open(ctx context.Context, url string) error
}

// SystemBrowser launches the platform's default URL handler
type SystemBrowser struct{}

// Open implements Browser
func (SystemBrowser) Open(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}

// Opener walks the top facilities of INVESTIGATION_WITH_LINKS.csv in a browser
type Opener struct {
	Browser Browser
	In      io.Reader // Enter between facilities
	Out     io.Writer
	Delay   time.Duration
}

// OpenTop opens the Maps, SOS and news links for the first n rows, pausing for
// Enter between facilities.
func (o *Opener) OpenTop(ctx context.Context, enriched *report.Table, n int) error {
	records := enriched.Records()
	if n > len(records) {
		n = len(records)
	}
	in := bufio.NewReader(o.In)

	for i := 0; i < n; i++ {
		rec := records[i]
		fmt.Fprintf(o.Out, "\n%d. Opening links for: %s\n", i+1, rec.Get(facility.ColName))

		urls := []string{rec.Get(report.ColMapsURL), rec.Get(ColSOS), rec.Get(ColNews)}
		for _, u := range urls {
			if u == "" {
				continue
			}
			if err := o.Browser.Open(ctx, u); err != nil {
				return fmt.Errorf("open %s: %w", u, err)
			}
			log.Debug().Str("url", u).Msg("Opened link")
			if err := o.sleep(ctx); err != nil {
				return err
			}
		}

		if i < n-1 {
			fmt.Fprintf(o.Out, "\nPress Enter to continue to facility %d...", i+2)
			if _, err := in.ReadString('\n'); err != nil && err != io.EOF {
				return err
			}
		}
	}
	return nil
}

func (o *Opener) sleep(ctx context.Context) error {
	if o.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.Delay):
		return nil
	}
}
