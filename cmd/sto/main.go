package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uivlis/sto/pkg/captable"
	"github.com/uivlis/sto/pkg/config"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/ethereum"
	"github.com/uivlis/sto/pkg/identity"
	"github.com/uivlis/sto/pkg/keys"
	"github.com/uivlis/sto/pkg/pgutil"
	"github.com/uivlis/sto/pkg/scanner"
	"github.com/uivlis/sto/pkg/txservice"
)

var commands = `Commands:
  diagnose       Check node connectivity and broadcast account funding
  deploy         Queue a contract deployment
  transfer       Queue a single token transfer
  distribute     Queue token transfers from a distribution CSV
  broadcast      Push all signed transactions to the network
  refresh        Poll receipts for broadcast transactions
  last           Show the most recent transactions
  next-nonce     Show the nonce the next prepared transaction would get
  restart-nonce  Reset the local nonce counter from the chain
  scan           Replay a token's transfer events into the holder ledger
  captable       Print the cap table for a scanned token
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config path] <command> [options]\n\n%s", os.Args[0], commands)
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, flag.Args()); err != nil {
		logger.Error("Command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundb, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer bundb.Close()
	store := db.NewStore(bundb)

	client, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	privateKeyHex, err := keys.ResolveHex(cfg.Ethereum.PrivateKey, cfg.Ethereum.PrivateKeyEncrypted, cfg.Ethereum.MasterKey)
	if err != nil {
		return err
	}
	signer, err := ethereum.NewSigner(privateKeyHex, big.NewInt(cfg.Ethereum.Network.ChainID()))
	if err != nil {
		return err
	}

	queue, err := txservice.New(txservice.NewStore(store), client, signer, cfg.Ethereum, logger)
	if err != nil {
		return err
	}

	if cfg.Monitoring.Enabled {
		stopMetrics := startMetricsServer(cfg.Monitoring, logger)
		defer stopMetrics()
	}

	command, commandArgs := args[0], args[1:]

	// On a fresh database the counter starts from wherever the account
	// already is on chain. Never touches an existing counter; recovery
	// after a rejected broadcast stays with the restart-nonce command.
	switch command {
	case "deploy", "transfer", "distribute", "broadcast":
		if cfg.Ethereum.AutoRestartNonce {
			if _, err := queue.SeedNonceIfUnset(ctx); err != nil {
				return err
			}
		}
	}

	switch command {
	case "diagnose":
		return cmdDiagnose(ctx, queue)
	case "deploy":
		return cmdDeploy(ctx, queue, commandArgs)
	case "transfer":
		return cmdTransfer(ctx, queue, commandArgs)
	case "distribute":
		return cmdDistribute(ctx, queue, commandArgs)
	case "broadcast":
		return cmdBroadcast(ctx, queue)
	case "refresh":
		return cmdRefresh(ctx, queue)
	case "last":
		return cmdLast(ctx, queue, commandArgs)
	case "next-nonce":
		return cmdNextNonce(ctx, queue)
	case "restart-nonce":
		return cmdRestartNonce(ctx, queue)
	case "scan":
		return cmdScan(ctx, store, client, cfg, logger, commandArgs)
	case "captable":
		return cmdCapTable(ctx, store, cfg, commandArgs)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func cmdDiagnose(ctx context.Context, queue *txservice.Service) error {
	report, err := queue.Diagnose(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Network:           %s\n", report.Network)
	fmt.Printf("Broadcast account: %s\n", report.Address)
	fmt.Printf("Chain head:        %d\n", report.BlockNumber)
	fmt.Printf("Balance (wei):     %s\n", report.BalanceWei.String())
	if !report.Funded {
		fmt.Println("WARNING: the broadcast account holds no ether and cannot pay for gas")
	}
	return nil
}

func cmdDeploy(ctx context.Context, queue *txservice.Service, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	bytecodeFile := fs.String("bytecode-file", "", "File with the contract bytecode as hex")
	name := fs.String("name", "", "Contract name for bookkeeping")
	note := fs.String("note", "", "Free-form audit note")
	externalID := fs.String("external-id", "", "Correlation id for idempotent re-runs")
	fs.Parse(args)

	if *bytecodeFile == "" {
		return errors.New("deploy requires -bytecode-file")
	}
	raw, err := os.ReadFile(*bytecodeFile)
	if err != nil {
		return err
	}
	bytecode := common.FromHex(strings.TrimSpace(string(raw)))
	if len(bytecode) == 0 {
		return fmt.Errorf("%s does not contain hex bytecode", *bytecodeFile)
	}

	tx, err := queue.DeployContract(ctx, bytecode, *name, *note, *externalID)
	if err != nil {
		return err
	}
	fmt.Printf("Queued deployment %s\n", tx.ID)
	fmt.Printf("Nonce:            %d\n", tx.Nonce)
	fmt.Printf("Contract address: %s\n", tx.ContractAddress)
	fmt.Printf("Transaction hash: %s\n", tx.TxHash)
	return nil
}

func cmdTransfer(ctx context.Context, queue *txservice.Service, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	token := fs.String("token", "", "Token contract address")
	to := fs.String("to", "", "Receiver address")
	amount := fs.String("amount", "", "Amount in raw base units")
	note := fs.String("note", "", "Free-form audit note")
	externalID := fs.String("external-id", "", "Correlation id for idempotent re-runs")
	fs.Parse(args)

	tokenAddr, err := parseAddress(*token, "token")
	if err != nil {
		return err
	}
	toAddr, err := parseAddress(*to, "to")
	if err != nil {
		return err
	}
	rawAmount, ok := new(big.Int).SetString(*amount, 10)
	if !ok {
		return fmt.Errorf("invalid -amount %q, expected a decimal integer", *amount)
	}

	tx, err := queue.TransferTokens(ctx, tokenAddr, toAddr, rawAmount, *externalID, *note)
	if err != nil {
		return err
	}
	fmt.Printf("Queued transfer %s (nonce %d, hash %s)\n", tx.ID, tx.Nonce, tx.TxHash)
	return nil
}

func cmdDistribute(ctx context.Context, queue *txservice.Service, args []string) error {
	fs := flag.NewFlagSet("distribute", flag.ExitOnError)
	token := fs.String("token", "", "Token contract address")
	csvFile := fs.String("csv", "", "Distribution CSV: external_id,address,amount,name,email")
	fs.Parse(args)

	tokenAddr, err := parseAddress(*token, "token")
	if err != nil {
		return err
	}
	entries, err := readDistributionCSV(*csvFile)
	if err != nil {
		return err
	}

	created, existing, err := queue.DistributeTokens(ctx, tokenAddr, entries)
	if err != nil {
		return err
	}
	fmt.Printf("Queued %d new transfers, %d were already prepared\n", created, existing)
	return nil
}

// readDistributionCSV parses external_id,address,amount,name,email rows into
// distribution entries. A header row is skipped when present.
func readDistributionCSV(path string) ([]txservice.DistributionEntry, error) {
	if path == "" {
		return nil, errors.New("distribute requires -csv")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var entries []txservice.DistributionEntry
	for i, record := range records {
		if i == 0 && len(record) > 0 && strings.EqualFold(record[0], "external_id") {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("row %d: expected at least external_id,address,amount", i+1)
		}
		addr, err := parseAddress(record[1], fmt.Sprintf("row %d address", i+1))
		if err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(record[2]), 10)
		if !ok {
			return nil, fmt.Errorf("row %d: invalid amount %q", i+1, record[2])
		}
		entry := txservice.DistributionEntry{
			ExternalID: strings.TrimSpace(record[0]),
			Address:    addr,
			RawAmount:  amount,
		}
		if len(record) > 3 {
			entry.Name = strings.TrimSpace(record[3])
		}
		if len(record) > 4 {
			entry.Email = strings.TrimSpace(record[4])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func cmdBroadcast(ctx context.Context, queue *txservice.Service) error {
	sent, err := queue.BroadcastPending(ctx)
	fmt.Printf("Broadcast %d transactions\n", len(sent))
	for _, tx := range sent {
		fmt.Printf("  nonce %d  %s\n", tx.Nonce, tx.TxHash)
	}

	if err != nil && errors.Is(err, txservice.ErrNonceOutOfSync) {
		fmt.Println("Broadcast halted on a rejected nonce; inspect the queue, then run restart-nonce to recover")
	}
	return err
}

func cmdRefresh(ctx context.Context, queue *txservice.Service) error {
	resolved, err := queue.RefreshStatus(ctx)
	fmt.Printf("Resolved %d transactions\n", len(resolved))
	for _, tx := range resolved {
		fmt.Printf("  %s  %s  block %d\n", tx.TxHash, tx.State, derefInt64(tx.ResultBlockNum))
	}
	return err
}

func cmdLast(ctx context.Context, queue *txservice.Service, args []string) error {
	fs := flag.NewFlagSet("last", flag.ExitOnError)
	limit := fs.Int("limit", 10, "How many transactions to show")
	fs.Parse(args)

	txs, err := queue.LastTransactions(ctx, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tNONCE\tSTATE\tTO\tHASH\tNOTE")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Format(time.RFC3339), tx.Nonce, tx.State, tx.To(), tx.TxHash, tx.Note)
	}
	return w.Flush()
}

func cmdNextNonce(ctx context.Context, queue *txservice.Service) error {
	nonce, err := queue.NextNonce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Next nonce: %d\n", nonce)
	return nil
}

func cmdRestartNonce(ctx context.Context, queue *txservice.Service) error {
	nonce, err := queue.ResyncNonce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Nonce counter reset, next nonce: %d\n", nonce)
	return nil
}

func cmdScan(ctx context.Context, store *db.Store, client *ethereum.Client, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	token := fs.String("token", "", "Token contract address")
	startBlock := fs.Uint64("start-block", 0, "First block to scan (default: resume from checkpoint)")
	endBlock := fs.Uint64("end-block", 0, "Last block to scan (default: chain head minus confirmation lag)")
	fs.Parse(args)

	tokenAddr, err := parseAddress(*token, "token")
	if err != nil {
		return err
	}

	scan, err := scanner.New(scanner.NewStore(store), client, cfg.Ethereum.Network, scanner.Config{
		WindowSize:      cfg.Ethereum.ScanWindowSize,
		ConfirmationLag: cfg.Ethereum.ConfirmationLag,
	}, logger)
	if err != nil {
		return err
	}

	// only flags the operator actually set override the defaults
	var opts scanner.Options
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "start-block":
			opts.StartBlock = startBlock
		case "end-block":
			opts.EndBlock = endBlock
		}
	})

	updated, err := scan.Scan(ctx, tokenAddr, opts)
	fmt.Printf("Updated %d holders\n", len(updated))
	return err
}

func cmdCapTable(ctx context.Context, store *db.Store, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("captable", flag.ExitOnError)
	token := fs.String("token", "", "Token contract address")
	sortBy := fs.String("sort-by", "balance", "Sort key: balance, name, updated or address")
	order := fs.String("order", "desc", "Sort direction: asc or desc")
	includeEmpty := fs.Bool("include-empty", false, "Keep holders with a zero balance")
	maxEntries := fs.Int("max", 0, "Maximum number of rows, 0 for all")
	accuracy := fs.Int("accuracy", 2, "Fractional digits in rendered balances")
	identityFile := fs.String("identity-csv", "", "Identity CSV: address,name")
	fs.Parse(args)

	tokenAddr, err := parseAddress(*token, "token")
	if err != nil {
		return err
	}

	provider, err := loadIdentityProvider(*identityFile)
	if err != nil {
		return err
	}

	holders, err := store.ListTokenHolderAccounts(ctx, cfg.Ethereum.Network.String(), tokenAddr.Hex())
	if err != nil {
		return err
	}

	entries, err := captable.Build(holders, provider, captable.Options{
		SortBy:        captable.SortBy(*sortBy),
		Direction:     captable.Direction(*order),
		IncludeEmpty:  *includeEmpty,
		MaxEntries:    *maxEntries,
		TokenDecimals: int32(cfg.Token.Decimals),
		Accuracy:      int32(*accuracy),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tBALANCE\tLAST BLOCK")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", entry.Address, entry.Name, entry.BalanceDisplay, entry.LastUpdatedBlock)
	}
	return w.Flush()
}

// loadIdentityProvider reads an address,name CSV into a memory provider. No
// file means nobody gets a name.
func loadIdentityProvider(path string) (identity.Provider, error) {
	if path == "" {
		return identity.NullProvider{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(records))
	for i, record := range records {
		if i == 0 && len(record) > 0 && strings.EqualFold(record[0], "address") {
			continue
		}
		if len(record) < 2 {
			continue
		}
		names[strings.TrimSpace(record[0])] = strings.TrimSpace(record[1])
	}
	return identity.NewMemoryProvider(names), nil
}

// startMetricsServer exposes /health and /metrics while a command runs.
// Useful for long scans watched by an external prometheus.
func startMetricsServer(cfg config.MonitoringConfig, logger *zap.Logger) func() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: r,
	}
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.MetricsPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func parseAddress(s, what string) (common.Address, error) {
	if s == "" {
		return common.Address{}, fmt.Errorf("missing %s address", what)
	}
	if err := ethereum.ValidateAddress(s); err != nil {
		return common.Address{}, fmt.Errorf("invalid %s address: %w", what, err)
	}
	return common.HexToAddress(s), nil
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
