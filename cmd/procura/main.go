package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"procura/internal"
	"procura/internal/config"
	"procura/internal/connectors"
	gmailconnector "procura/internal/connectors/gmail"
	imapconnector "procura/internal/connectors/imap"
	"procura/internal/listener"
	"procura/internal/logger"
	"procura/internal/oracle"
	"procura/internal/pipeline"
	"procura/internal/storage"
	"procura/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	must(err)
	defer func() { _ = log.Sync() }()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx := context.Background()

	cmd := os.Args[1]
	switch cmd {
	case "vendor:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "vendor name")
		email := fs.String("email", "", "vendor email")
		contact := fs.String("contact", "", "contact person")
		tags := fs.String("tags", "", "comma-separated tags")
		_ = fs.Parse(os.Args[2:])
		if *name == "" || *email == "" {
			must(fmt.Errorf("--name and --email are required"))
		}
		vendor := internal.Vendor{Name: *name, Email: *email}
		if strings.TrimSpace(*contact) != "" {
			vendor.ContactPerson = util.StringPtr(*contact)
		}
		for _, tag := range strings.Split(*tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				vendor.Tags = append(vendor.Tags, tag)
			}
		}
		created, err := db.CreateVendor(vendor)
		must(err)
		fmt.Printf("vendor created id=%s email=%s\n", created.ID, created.Email)

	case "vendor:list":
		vendors, err := db.ListVendors()
		must(err)
		for _, v := range vendors {
			fmt.Printf("%s  %-30s %s\n", v.ID, v.Email, v.Name)
		}

	case "rfp:draft":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		text := fs.String("text", "", "free-text procurement request")
		save := fs.Bool("save", false, "persist the draft")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*text) == "" {
			must(fmt.Errorf("--text is required"))
		}
		ai, err := oracle.New(ctx, cfg, log)
		must(err)
		draft, err := ai.ExtractRFPFields(ctx, *text)
		must(err)
		blob, _ := json.MarshalIndent(draft, "", "  ")
		fmt.Println(string(blob))
		if *save {
			created, err := db.CreateRFP(internal.RFP{
				Title:        draft.Title,
				Description:  *text,
				Requirements: draft.Requirements(),
				Status:       internal.StatusDraft,
			})
			must(err)
			fmt.Printf("rfp created id=%s title=%q\n", created.ID, created.Title)
		}

	case "rfp:create":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		title := fs.String("title", "", "rfp title")
		desc := fs.String("description", "", "free-text description")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*title) == "" {
			must(fmt.Errorf("--title is required"))
		}
		created, err := db.CreateRFP(internal.RFP{
			Title:       *title,
			Description: *desc,
			Status:      internal.StatusDraft,
		})
		must(err)
		fmt.Printf("rfp created id=%s title=%q\n", created.ID, created.Title)

	case "rfp:list":
		rfps, err := db.ListRFPs()
		must(err)
		for _, r := range rfps {
			fmt.Printf("%s  %-8s %-40q vendors=%d\n", r.ID, r.Status, r.Title, len(r.Vendors))
		}

	case "rfp:send":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "rfp id")
		vendorList := fs.String("vendors", "", "comma-separated vendor ids")
		_ = fs.Parse(os.Args[2:])
		if *id == "" || strings.TrimSpace(*vendorList) == "" {
			must(fmt.Errorf("--id and --vendors are required"))
		}
		var vendorIDs []string
		for _, v := range strings.Split(*vendorList, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vendorIDs = append(vendorIDs, v)
			}
		}
		courier, err := makeCourier(cfg)
		must(err)
		svc := pipeline.NewInviteService(db, courier, log)
		sent, err := svc.Send(ctx, *id, vendorIDs)
		must(err)
		fmt.Printf("rfp sent to %d vendors\n", sent)

	case "ingest:run":
		ingest, err := makeIngestService(ctx, cfg, db, log)
		must(err)
		report, err := ingest.Run(ctx)
		must(err)
		blob, _ := json.MarshalIndent(struct {
			Processed int                  `json:"processedCount"`
			Created   []string             `json:"created"`
			Skipped   []internal.SkipEntry `json:"skipped"`
		}{report.Processed, proposalIDs(report.Created), report.Skipped}, "", "  ")
		fmt.Println(string(blob))

	case "ingest:listen":
		ingest, err := makeIngestService(ctx, cfg, db, log)
		must(err)
		svc := listener.NewService(ingest, cfg, log)
		must(svc.Run(ctx))

	case "compare:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "rfp id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *id == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--id and --out are required"))
		}
		rfp, err := db.GetRFP(*id)
		must(err)
		if rfp == nil {
			must(fmt.Errorf("rfp not found: %s", *id))
		}
		proposals, err := db.ListProposalsByRFP(*id)
		must(err)
		if len(proposals) == 0 {
			must(fmt.Errorf("no proposals to compare for rfp %s", *id))
		}
		entries := make([]oracle.VendorProposal, 0, len(proposals))
		for _, p := range proposals {
			vendor, err := db.VendorByID(p.VendorID)
			must(err)
			name := p.VendorID
			if vendor != nil {
				name = vendor.Name
			}
			entries = append(entries, oracle.VendorProposal{Vendor: name, Data: p.Fields})
		}
		ai, err := oracle.New(ctx, cfg, log)
		must(err)
		result, err := ai.CompareProposals(ctx, rfp.Requirements, entries)
		must(err)
		must(pipeline.ExportComparisonToXLSX(result, *out))
		fmt.Printf("comparison exported rows=%d output=%s\n", len(result.Matrix), *out)

	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(cfg config.Config) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MailProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.MailProvider)
	}
}

func makeCourier(cfg config.Config) (connectors.Courier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MailProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return connectors.NewSMTPCourier(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.MailProvider)
	}
}

func makeIngestService(ctx context.Context, cfg config.Config, db *storage.DB, log *zap.Logger) (*pipeline.IngestService, error) {
	conn, err := makeConnector(cfg)
	if err != nil {
		return nil, err
	}
	ai, err := oracle.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	source := connectors.NewSource(conn, cfg.RawMailDir, cfg.IngestFetchMax, log)
	deadline := time.Duration(cfg.IngestDeadlineSec) * time.Second
	return pipeline.NewIngestService(db, source, ai, deadline, log), nil
}

func proposalIDs(proposals []internal.Proposal) []string {
	out := make([]string, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, p.ID)
	}
	return out
}

func usage() {
	fmt.Println("usage: procura <command>")
	fmt.Println("commands:")
	fmt.Println("  vendor:add --name=... --email=... [--contact=...] [--tags=a,b]")
	fmt.Println("  vendor:list")
	fmt.Println("  rfp:draft --text=... [--save]")
	fmt.Println("  rfp:create --title=... [--description=...]")
	fmt.Println("  rfp:list")
	fmt.Println("  rfp:send --id=... --vendors=id1,id2")
	fmt.Println("  ingest:run")
	fmt.Println("  ingest:listen")
	fmt.Println("  compare:xlsx --id=... --out=./out/comparison.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
