package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/validation"
	"github.com/pendergraft/deployvault/pkg/client"
)

const listPageSize = 100

func createListCmd(opts *options) *cobra.Command {
	var (
		jsonOutput bool
		verified   bool
		server     string
	)

	cmd := &cobra.Command{
		Use:   "list [network]",
		Short: "List deployments",
		Long: `List the deployments in the registry, optionally restricted to one
network. With --server the listing comes from a running resolver instead.`,
		Example: `  deployvault list
  deployvault list mainnet --verified
  deployvault list --server http://localhost:8545 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			var filter domain.ListFilter
			if len(args) == 1 {
				network, err := a.cfg.Network(args[0])
				if err != nil {
					return err
				}
				filter.ChainID = network.ChainID
			}
			if cmd.Flags().Changed("verified") {
				filter.Verified = &verified
			}

			var summaries []domain.Summary
			if server != "" {
				summaries, err = listFromServer(cmd.Context(), client.New(server), filter)
			} else {
				summaries, err = listLocal(cmd.Context(), a, filter)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(a.out, summaries)
			}
			output.DeploymentTable(a.out, summaries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&verified, "verified", false, "Only deployments with (or, when false, without) compiler input")
	cmd.Flags().StringVar(&server, "server", "", "Resolver URL to query instead of the local registry")

	return cmd
}

func listLocal(ctx context.Context, a *app, filter domain.ListFilter) ([]domain.Summary, error) {
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var all []domain.Summary
	page := domain.PaginationParams{Limit: listPageSize}
	for {
		result, err := svc.List(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Deployments...)
		if !result.HasMore {
			return all, nil
		}
		page.Cursor = result.NextCursor
	}
}

func listFromServer(ctx context.Context, c *client.Client, filter domain.ListFilter) ([]domain.Summary, error) {
	var all []domain.Summary
	opts := client.ListOptions{ChainID: filter.ChainID, Verified: filter.Verified, Limit: listPageSize}
	for {
		resp, err := c.ListDeployments(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, d := range resp.Data {
			all = append(all, summaryFromClient(d))
		}
		if !resp.Pagination.HasMore {
			return all, nil
		}
		opts.Cursor = resp.Pagination.NextCursor
	}
}

func summaryFromClient(d client.Deployment) domain.Summary {
	return domain.Summary{
		ChainID:      d.ChainID,
		Name:         d.Name,
		Context:      d.Context,
		Address:      d.Address,
		ContractName: d.ContractName,
		TxHash:       d.TxHash,
		Compiler:     d.Compiler,
		Verified:     d.Verified,
	}
}

func createShowCmd(opts *options) *cobra.Command {
	var (
		jsonOutput bool
		server     string
	)

	cmd := &cobra.Command{
		Use:   "show <network> <name>",
		Short: "Show one deployment",
		Example: `  deployvault show mainnet Token
  deployvault show mainnet Token --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			network, err := a.cfg.Network(args[0])
			if err != nil {
				return err
			}

			var artifact *domain.Artifact
			if server != "" {
				artifact, err = showFromServer(cmd.Context(), client.New(server), network.ChainID, args[1])
			} else {
				artifact, err = showLocal(cmd.Context(), a, network.ChainID, args[1])
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(a.out, artifact)
			}
			output.KeyValueTable(a.out, artifactRows(network.Name, artifact))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw artifact")
	cmd.Flags().StringVar(&server, "server", "", "Resolver URL to query instead of the local registry")

	return cmd
}

func showLocal(ctx context.Context, a *app, chainID uint64, name string) (*domain.Artifact, error) {
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return svc.Get(ctx, chainID, name)
}

func showFromServer(ctx context.Context, c *client.Client, chainID uint64, name string) (*domain.Artifact, error) {
	resp, err := c.GetDeployment(ctx, chainID, name)
	if err != nil {
		if client.IsNotFound(err) {
			return nil, &domain.NotFoundError{Name: name, ChainID: chainID}
		}
		return nil, err
	}
	var artifact domain.Artifact
	if err := json.Unmarshal(resp.Artifact, &artifact); err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	artifact.Name = resp.Name
	artifact.ChainID = resp.ChainID
	return &artifact, nil
}

func artifactRows(network string, a *domain.Artifact) [][2]string {
	verified := "no"
	if a.HasStandardJSONInput() {
		verified = "yes"
	}
	rows := [][2]string{
		{"Name", a.Name},
		{"Network", network},
		{"Chain ID", strconv.FormatUint(a.ChainID, 10)},
		{"Address", a.Address},
		{"Contract", a.ArtifactFullPath},
		{"Context", a.Context},
		{"Tx Hash", a.TxHash},
		{"Compiler", a.Compiler},
		{"Verified", verified},
	}
	if a.SkipVerify {
		rows = append(rows, [2]string{"Skip Verify", "yes"})
	}
	return rows
}

func createFindCmd(opts *options) *cobra.Command {
	var (
		jsonOutput bool
		server     string
	)

	cmd := &cobra.Command{
		Use:   "find <address>",
		Short: "Find every deployment of an address across networks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			if err := validation.ValidateAddress(args[0]); err != nil {
				return err
			}

			var summaries []domain.Summary
			if server != "" {
				var found []client.Deployment
				found, err = client.New(server).FindByAddress(cmd.Context(), args[0])
				for _, d := range found {
					summaries = append(summaries, summaryFromClient(d))
				}
			} else {
				summaries, err = findLocal(cmd.Context(), a, args[0])
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(a.out, summaries)
			}
			output.DeploymentTable(a.out, summaries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&server, "server", "", "Resolver URL to query instead of the local registry")

	return cmd
}

func findLocal(ctx context.Context, a *app, address string) ([]domain.Summary, error) {
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return svc.FindByAddress(ctx, address)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
