package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
)

// RunFileName is the file Foundry keeps for the latest run of a script.
const RunFileName = "run-latest.json"

const defaultConcurrency = 8

// ArtifactReader looks up local build artifacts for ABI enrichment.
type ArtifactReader interface {
	Read(sourcePath, contractName string) (*foundry.BuildArtifact, error)
}

// Parser turns a broadcast root into deployment records.
type Parser struct {
	logger      *slog.Logger
	artifacts   ArtifactReader
	concurrency int
}

// Option configures a Parser.
type Option func(*Parser)

// WithArtifacts copies ABIs from local build artifacts into records.
func WithArtifacts(r ArtifactReader) Option {
	return func(p *Parser) { p.artifacts = r }
}

// WithConcurrency bounds how many run files are loaded at once.
func WithConcurrency(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewParser creates a broadcast parser.
func NewParser(logger *slog.Logger, opts ...Option) *Parser {
	p := &Parser{logger: logger, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runRef identifies one script/chain run file.
type runRef struct {
	script string
	chain  string
	path   string
}

type fileResult struct {
	records []domain.Record
	skipped int
	read    bool
	err     error
}

// Parse loads every {root}/{script}/{chain}/run-latest.json. Files are read
// concurrently and folded in (script, chain) order, so a later pair wins on a
// duplicate key.
func (p *Parser) Parse(ctx context.Context, root string) (*Result, error) {
	refs, err := discover(root)
	if err != nil {
		return nil, err
	}

	results := make([]fileResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.parseFile(ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Records: make(map[string]domain.Record)}
	for i, fr := range results {
		if !fr.read {
			continue
		}
		res.Files++
		if fr.err != nil {
			mb := &domain.MalformedBroadcastError{File: refs[i].path, Err: fr.err}
			p.logger.Warn("skipping malformed broadcast", "file", refs[i].path, "error", fr.err)
			res.Failures = append(res.Failures, mb)
			metrics.BroadcastFile("malformed")
			continue
		}
		metrics.BroadcastFile("ok")
		res.Skipped += fr.skipped
		for _, rec := range fr.records {
			if prev, ok := res.Records[rec.Key()]; ok && prev.Address != rec.Address {
				p.logger.Debug("descriptor overridden by later run",
					"key", rec.Key(), "previous", prev.Address, "address", rec.Address, "file", refs[i].path)
			}
			res.Records[rec.Key()] = rec
		}
	}
	return res, nil
}

// discover lists run files in sorted (script, chain) order. A missing root
// yields no files.
func discover(root string) ([]runRef, error) {
	scripts, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading broadcast root: %w", err)
	}

	var refs []runRef
	for _, s := range scripts {
		if !s.IsDir() {
			continue
		}
		chains, err := os.ReadDir(filepath.Join(root, s.Name()))
		if err != nil {
			continue
		}
		for _, c := range chains {
			if !c.IsDir() {
				continue
			}
			refs = append(refs, runRef{
				script: s.Name(),
				chain:  c.Name(),
				path:   filepath.Join(root, s.Name(), c.Name(), RunFileName),
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].script != refs[j].script {
			return refs[i].script < refs[j].script
		}
		return refs[i].chain < refs[j].chain
	})
	return refs, nil
}

func (p *Parser) parseFile(ref runRef) fileResult {
	data, err := os.ReadFile(ref.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("skipping unreadable broadcast", "file", ref.path, "error", err)
		}
		return fileResult{}
	}

	var run RunFile
	if err := json.Unmarshal(data, &run); err != nil {
		return fileResult{read: true, err: fmt.Errorf("parsing JSON: %w", err)}
	}

	records, skipped, err := p.extract(&run)
	return fileResult{read: true, records: records, skipped: skipped, err: err}
}

// extract joins the descriptor tuples of a run with its creation
// transactions by address.
func (p *Parser) extract(run *RunFile) ([]domain.Record, int, error) {
	creations := make(map[string]*TransactionResult)
	for i := range run.Transactions {
		tx := &run.Transactions[i]
		if tx.ContractAddress == nil || *tx.ContractAddress == "" {
			continue
		}
		creations[strings.ToLower(*tx.ContractAddress)] = tx
	}

	var value string
	var found bool
	for _, key := range sortedKeys(run.Returns) {
		if rv := run.Returns[key]; rv.InternalType == DescriptorType {
			value, found = rv.Value, true
			break
		}
	}
	if !found {
		return nil, 0, nil
	}

	descriptors, err := ParseDescriptors(value)
	if err != nil {
		return nil, 0, err
	}

	var records []domain.Record
	skipped := 0
	for _, d := range descriptors {
		if d.Context == domain.VoidContext {
			skipped++
			continue
		}
		sourcePath, contractName, ok := foundry.SplitFullPath(d.ArtifactFullPath)
		if !ok {
			return nil, 0, fmt.Errorf("descriptor %s: artifact path %q has no contract name", d.Name, d.ArtifactFullPath)
		}

		rec := domain.Record{
			Name:             d.Name,
			Address:          d.Address,
			Bytecode:         d.Bytecode,
			ArgsData:         d.ArgsData,
			ContractName:     contractName,
			ArtifactPath:     sourcePath,
			ArtifactFullPath: d.ArtifactFullPath,
			Context:          d.Context,
			ChainID:          d.ChainID,
		}
		// Factory creations have no top-level transaction.
		if tx, ok := creations[strings.ToLower(d.Address)]; ok {
			rec.TxHash = tx.Hash
			rec.Args = tx.Arguments
			rec.Data = tx.Transaction.Input
		}
		if p.artifacts != nil {
			if a, err := p.artifacts.Read(sourcePath, contractName); err == nil && len(a.ABI) > 0 {
				rec.ABI = a.ABI
			}
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func sortedKeys(m map[string]ReturnValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
