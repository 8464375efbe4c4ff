package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

// DeploymentTable prints deployment summaries as a table.
func DeploymentTable(w io.Writer, deployments []domain.Summary) {
	if len(deployments) == 0 {
		fmt.Fprintln(w, "No deployments found")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"CHAIN", "NAME", "CONTRACT", "ADDRESS", "CONTEXT", "VERIFIED"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, d := range deployments {
		verified := ""
		if d.Verified {
			verified = MarkSuccess
		}
		table.Append([]string{
			strconv.FormatUint(d.ChainID, 10),
			d.Name,
			d.ContractName,
			d.Address,
			d.Context,
			verified,
		})
	}
	table.Render()
}

// KeyValueTable prints ordered field/value pairs.
func KeyValueTable(w io.Writer, rows [][2]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"FIELD", "VALUE"})
	table.SetAutoWrapText(false)
	for _, r := range rows {
		table.Append([]string{r[0], r[1]})
	}
	table.Render()
}
