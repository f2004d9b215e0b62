package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/model"
)

const retailHeader = "InvoiceNo,CustomerID,InvoiceDate,Quantity,UnitPrice,Amount,StockCode,Description,Category,Country"

// retailRows generates one order line per customer per month of 2023.
func retailRows(customers, months int) []string {
	var rows []string
	for c := 1; c <= customers; c++ {
		for m := 1; m <= months; m++ {
			qty := c%5 + 1
			price := 2.5 + float64(c%3)
			rows = append(rows, fmt.Sprintf("T%d-%d,%d,2023-%02d-%02d 10:30:00,%d,%.2f,%.2f,P%d,Item %d,Home,united kingdom",
				c, m, 1000+c, m, c%28+1, qty, price, float64(qty)*price, c%7, c%7))
		}
	}
	return rows
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func writeRetailCSV(t *testing.T, dir, name string, customers, months int) string {
	t.Helper()
	return writeFile(t, dir, name, retailHeader+"\n"+strings.Join(retailRows(customers, months), "\n")+"\n")
}

func testParams(dataPath, outDir string) model.RunParams {
	p := model.DefaultRunParams()
	p.DataPath = dataPath
	p.OutputDir = outDir
	p.KMax = 4
	p.NInit = 2
	p.MaxIter = 50
	p.Retry.InitialDelay = 0
	return p
}
