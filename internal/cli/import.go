package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vortex-fintech/go-contacts/contact"
	apperrors "github.com/vortex-fintech/go-contacts/errors"
	"github.com/vortex-fintech/go-contacts/logger"
)

const maxLineBytes = 1 << 20

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	File        string
	Workers     int
	MetricsAddr string
}

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert JSON-lines contact records",
		Long: `Read one JSON contact object per line and reconcile each into the store.

Records are matched by formatted phone number first, then by user id.
Malformed lines and failed records are logged and counted; the command
exits non-zero when any record failed.

Example:
  contactsync import --backend sqlite --sqlite-path ./contacts.db -f contacts.jsonl
  cat contacts.jsonl | contactsync import --workers 8 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", env("FILE", "-"), `input file, "-" for stdin`)
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", envInt("WORKERS", 4), "concurrent upserts")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", env("METRICS_ADDR", ""), "serve /metrics and /health on this address while importing")

	return cmd
}

// ImportSummary is what import prints.
type ImportSummary struct {
	Inserted       int `json:"inserted"`
	UpdatedByID    int `json:"updated_by_id"`
	UpdatedByPhone int `json:"updated_by_phone"`
	Unchanged      int `json:"unchanged"`
	Failed         int `json:"failed"`
	Events         int `json:"events"`
}

func runImport(ctx context.Context, opts *ImportOptions, stdin io.Reader, out io.Writer) error {
	if opts.Workers < 1 {
		return fmt.Errorf("--workers must be positive, got %d", opts.Workers)
	}

	in := stdin
	if opts.File != "" && opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = logger.ContextWithSyncID(ctx, uuid.NewString())
	stop, err := a.serveMetrics(ctx, opts.MetricsAddr)
	if err != nil {
		return err
	}
	defer stop()

	res, err := importRecords(ctx, a, in, opts.Workers)
	if err != nil {
		return err
	}

	summary := ImportSummary{
		Inserted:       res.Inserted,
		UpdatedByID:    res.UpdatedByID,
		UpdatedByPhone: res.UpdatedByPhone,
		Unchanged:      res.Unchanged,
		Failed:         res.Failed,
		Events:         len(a.svc.PullEvents()) + int(a.events.Dropped()),
	}
	a.log.InfowCtx(ctx, "import finished", "total", res.Total(), "failed", res.Failed, "events", summary.Events)
	if err := writeSummary(out, opts.Format, summary); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", res.Failed, res.Total())
	}
	return nil
}

type record struct {
	line int
	c    contact.Contact
}

// importRecords feeds parsed lines to workers. Per-record failures are
// counted; only input errors and cancellation end the run early.
func importRecords(ctx context.Context, a *app, in io.Reader, workers int) (contact.BatchResult, error) {
	var (
		mu  sync.Mutex
		res contact.BatchResult
	)
	failed := func() {
		mu.Lock()
		res.Failed++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan record)

	g.Go(func() error {
		defer close(jobs)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for line := 1; sc.Scan(); line++ {
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var c contact.Contact
			if err := json.Unmarshal(raw, &c); err != nil {
				a.log.WarnwCtx(gctx, "malformed record", "line", line, "error", err)
				failed()
				continue
			}
			select {
			case jobs <- record{line: line, c: c}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return sc.Err()
	})

	for range workers {
		g.Go(func() error {
			for r := range jobs {
				ch, err := a.svc.UpsertWithRetry(gctx, r.c)
				if err != nil {
					if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
						return err
					}
					resp := apperrors.FromContact(err)
					a.log.WarnwCtx(gctx, "record failed",
						"line", r.line,
						"user_id", r.c.UserID,
						"code", resp.Code.String(),
						"reason", resp.Reason,
						"error", err,
					)
					failed()
					continue
				}
				mu.Lock()
				res.Count(ch)
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	return res, err
}

func writeSummary(w io.Writer, format string, s ImportSummary) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(s)
	}
	_, err := fmt.Fprintf(w, "inserted=%d updated_by_id=%d updated_by_phone=%d unchanged=%d failed=%d events=%d\n",
		s.Inserted, s.UpdatedByID, s.UpdatedByPhone, s.Unchanged, s.Failed, s.Events)
	return err
}
