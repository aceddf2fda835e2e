package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/uam-labs/arbiter/pkg/audit"
	"github.com/uam-labs/arbiter/pkg/tracker"
)

func runSyncCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profileDir := fs.String("profile-dir", "profiles", "deployment profile directory")
	profile := fs.String("profile", "", "deployment profile code")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*profileDir, *profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	src := &tracker.ExcelSource{Path: cfg.TrackerPath, Sheet: cfg.TrackerSheet}
	catalog := tracker.NewCatalog()
	rs, err := catalog.Sync(src)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sync: %v\n", err)
		return 1
	}

	summary := tracker.Summarize(rs)
	out, _ := json.MarshalIndent(summary, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

func runTrainCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profileDir := fs.String("profile-dir", "profiles", "deployment profile directory")
	profile := fs.String("profile", "", "deployment profile code")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*profileDir, *profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	setup := newTerminalSetup(os.Stdin, stdout)
	a, err := buildApp(cfg, setup, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.engine.SyncRules(ctx, &tracker.ExcelSource{Path: cfg.TrackerPath, Sheet: cfg.TrackerSheet}); err != nil {
		_, _ = fmt.Fprintf(stderr, "sync: %v\n", err)
		return 1
	}

	trained, err := a.engine.Train(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "train: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "Trained for snapshot %s (%d rules, %d guards)\n",
		trained.SnapshotHash, trained.RuleCount, len(trained.Guards))
	return 0
}

func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profileDir := fs.String("profile-dir", "profiles", "deployment profile directory")
	profile := fs.String("profile", "", "deployment profile code")
	userID := fs.String("user", "", "requesting user ID")
	permission := fs.String("permission", "", "requested permission name")
	evidence := fs.String("evidence", "", "write an evidence pack zip after evaluation")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *userID == "" || *permission == "" {
		_, _ = fmt.Fprintln(stderr, "evaluate requires --user and --permission")
		return 2
	}

	cfg, err := loadConfig(*profileDir, *profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	a, err := buildApp(cfg, newTerminalSetup(os.Stdin, stdout), stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.engine.SyncRules(ctx, &tracker.ExcelSource{Path: cfg.TrackerPath, Sheet: cfg.TrackerSheet}); err != nil {
		_, _ = fmt.Fprintf(stderr, "sync: %v\n", err)
		return 1
	}

	eval, err := a.engine.EvaluateRequest(ctx, *userID, *permission)
	if eval == nil {
		_, _ = fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 1
	}
	if err != nil {
		// The decision stands; a side effect (ticket routing) failed.
		_, _ = fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	out, _ := json.MarshalIndent(eval, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))

	if *evidence != "" {
		pack, err := audit.Export(a.audit, audit.Filter{})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "evidence: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*evidence, pack.Archive, 0o644); err != nil {
			_, _ = fmt.Fprintf(stderr, "evidence: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "Evidence pack written to %s (%s)\n", *evidence, pack.Checksum)

		if cfg.EvidenceBucket != "" {
			uploader, err := audit.NewS3Uploader(ctx, audit.S3Config{
				Bucket:   cfg.EvidenceBucket,
				Region:   cfg.EvidenceRegion,
				Endpoint: os.Getenv("EVIDENCE_ENDPOINT"),
				Prefix:   "evidence/",
			})
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "evidence upload: %v\n", err)
				return 1
			}
			key, err := uploader.Upload(ctx, pack)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "evidence upload: %v\n", err)
				return 1
			}
			_, _ = fmt.Fprintf(stdout, "Evidence pack uploaded to s3://%s/%s\n", cfg.EvidenceBucket, key)
		}
	}
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pack := fs.String("pack", "", "evidence pack zip to verify")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *pack == "" {
		_, _ = fmt.Fprintln(stderr, "verify requires --pack")
		return 2
	}

	entries, err := readPackEntries(*pack)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	if err := audit.VerifyEntries(entries); err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "OK: %d entries, chain intact\n", len(entries))
	return 0
}

func readPackEntries(path string) ([]*audit.Entry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != "events.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()

		var entries []*audit.Entry
		if err := json.NewDecoder(rc).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode events.json: %w", err)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("pack has no events.json")
}

func runSampleCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "master_tracker.xlsx", "output workbook path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := tracker.WriteSampleWorkbook(*out); err != nil {
		_, _ = fmt.Fprintf(stderr, "sample: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "Sample tracker written to %s\n", *out)
	return 0
}
