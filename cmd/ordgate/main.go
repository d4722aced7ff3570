// Command ordgate wires the governance pipeline into a small CLI: evaluate a
// situation, check it against the policy bundle, append financial decision
// commits, verify chain integrity and export evidence packs.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/ordgate/core/pkg/config"
	"github.com/ordgate/core/pkg/events"
	"github.com/ordgate/core/pkg/export"
	"github.com/ordgate/core/pkg/fdc"
	"github.com/ordgate/core/pkg/ledger"
	"github.com/ordgate/core/pkg/observability"
	"github.com/ordgate/core/pkg/ord"
	"github.com/ordgate/core/pkg/policy"
	"github.com/ordgate/core/pkg/quota"
	"github.com/ordgate/core/pkg/signing"
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	initLogging(cfg.LogLevel, stderr)

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(context.Background(), obsCfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "observability: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	switch args[1] {
	case "evaluate":
		return runEvaluate(cfg, obs, stdin, stdout, stderr)
	case "policy":
		return runPolicy(cfg, stdin, stdout, stderr)
	case "commit":
		return runCommit(cfg, obs, stdin, stdout, stderr)
	case "verify":
		return runVerify(cfg, args[2:], stdout, stderr)
	case "export":
		return runExport(cfg, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: ordgate <command>

Commands:
  evaluate   Read an evaluation input (JSON) from stdin, print the composed decision
  policy     Read a rule context (JSON) from stdin, print the policy decision
  commit     Read a financial decision commit (JSON) from stdin, validate and append it
  verify     Verify chain integrity: ordgate verify <company_id>
  export     Export an evidence pack:  ordgate export <company_id> [out.zip]
  help       Show this message`)
}

func initLogging(level string, w io.Writer) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

func openLedger(cfg *config.Config) (*ledger.Ledger, func(), error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		store := ledger.NewPostgresStore(db)
		if err := store.Init(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return ledger.New(store), func() { _ = db.Close() }, nil
	}

	db, err := sql.Open("sqlite", "file:"+cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := ledger.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init sqlite store: %w", err)
	}
	return ledger.New(store), func() { _ = db.Close() }, nil
}

// evaluateRequest is the stdin payload for the evaluate command. Admission
// runs first when a tenant and plan are present.
type evaluateRequest struct {
	TenantID string      `json:"tenant_id,omitempty"`
	Plan     *quota.Plan `json:"plan,omitempty"`
	ord.Input
}

func runEvaluate(cfg *config.Config, obs *observability.Provider, stdin io.Reader, stdout, stderr io.Writer) int {
	var req evaluateRequest
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		_, _ = fmt.Fprintf(stderr, "parse input: %v\n", err)
		return 2
	}

	ctx := context.Background()
	log := events.NewLog(nil)

	if req.TenantID != "" && req.Plan != nil {
		db, err := sql.Open("sqlite", "file:"+cfg.SQLitePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "open sqlite: %v\n", err)
			return 1
		}
		defer func() { _ = db.Close() }()
		store, err := quota.NewSQLiteStore(db)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "init quota store: %v\n", err)
			return 1
		}
		var debounce quota.Debouncer = store
		if cfg.RedisAddr != "" {
			debounce = quota.NewRedisDebounce(cfg.RedisAddr, "", 0)
		}
		gate := quota.NewGate(store, debounce, nil)
		if cfg.GlobalRPS > 0 {
			gate = gate.WithGlobalLimit(cfg.GlobalRPS, cfg.GlobalBurst)
		}
		decision, err := gate.Admit(ctx, req.TenantID, req.ContextKey, *req.Plan)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "admission: %v\n", err)
			return 1
		}
		if !decision.Allowed {
			obs.RecordQuotaRejection(ctx, string(decision.Status))
			return printJSON(stdout, map[string]any{"admission": decision})
		}
	}

	evaluator := ord.NewEvaluator(log, nil).WithMetrics(obs)
	if req.Policy != nil {
		bundle, err := policy.LoadBundleFile(cfg.PolicyBundle)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "load policy bundle: %v\n", err)
			return 1
		}
		engine := policy.NewEngine()
		if err := engine.Load(bundle); err != nil {
			_, _ = fmt.Fprintf(stderr, "load policy: %v\n", err)
			return 1
		}
		evaluator = evaluator.WithPolicy(engine)
	}

	result, err := evaluator.Evaluate(ctx, req.Input)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 1
	}
	return printJSON(stdout, map[string]any{
		"result": result,
		"events": log.Snapshot(),
	})
}

func runPolicy(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) int {
	var rc policy.RuleContext
	if err := json.NewDecoder(stdin).Decode(&rc); err != nil {
		_, _ = fmt.Fprintf(stderr, "parse input: %v\n", err)
		return 2
	}

	bundle, err := policy.LoadBundleFile(cfg.PolicyBundle)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load policy bundle: %v\n", err)
		return 1
	}
	engine := policy.NewEngine()
	if err := engine.Load(bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "load policy: %v\n", err)
		return 1
	}

	decision, err := engine.Evaluate(rc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "evaluate policy: %v\n", err)
		return 1
	}
	return printJSON(stdout, decision)
}

func runCommit(cfg *config.Config, obs *observability.Provider, stdin io.Reader, stdout, stderr io.Writer) int {
	var commit fdc.Commit
	if err := json.NewDecoder(stdin).Decode(&commit); err != nil {
		_, _ = fmt.Fprintf(stderr, "parse commit: %v\n", err)
		return 2
	}

	if cfg.SigningSecret != "" && commit.Signatures.System == "" {
		signer, err := signing.NewSigner([]byte(cfg.SigningSecret))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "signer: %v\n", err)
			return 1
		}
		token, err := signer.Attest(commit.CompanyID, commit.FdcID, "")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "attest: %v\n", err)
			return 1
		}
		commit.Signatures.System = token
	}

	l, closeFn, err := openLedger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer closeFn()

	ctx := context.Background()
	start := time.Now()
	out, err := l.AppendCommit(ctx, &commit)
	obs.RecordAppendDuration(ctx, time.Since(start))
	if err != nil {
		var vErr *ledger.ValidationError
		if errors.As(err, &vErr) {
			_ = printJSON(stdout, vErr.Result)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "append: %v\n", err)
		return 1
	}
	return printJSON(stdout, out)
}

func runVerify(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: ordgate verify <company_id>")
		return 2
	}
	companyID := args[0]

	l, closeFn, err := openLedger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer closeFn()

	if err := l.VerifyChain(context.Background(), companyID); err != nil {
		_, _ = fmt.Fprintf(stderr, "chain verification failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "chain for %s verified\n", companyID)
	return 0
}

func runExport(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: ordgate export <company_id> [out.zip]")
		return 2
	}
	companyID := args[0]
	outPath := companyID + "-evidence.zip"
	if len(args) > 1 {
		outPath = args[1]
	}

	l, closeFn, err := openLedger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer closeFn()

	pack, err := export.NewExporter(l, nil).GeneratePack(context.Background(), export.Request{
		CompanyID: companyID,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, pack.Data, 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "write pack: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "pack %s written to %s (sha256 %s)\n", pack.PackID, outPath, pack.Checksum)

	if cfg.ExportBucket != "" {
		ctx := context.Background()
		sink, err := newPackSink(ctx, cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "export sink: %v\n", err)
			return 1
		}
		key, err := sink.Put(ctx, pack)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "upload pack: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "pack uploaded to %s/%s\n", cfg.ExportBucket, key)
	}
	return 0
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}
