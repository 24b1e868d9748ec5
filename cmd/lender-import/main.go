// lender-import loads a lender questionnaire export (CSV) into the SQLite
// database the service reads at startup. Re-running replaces the whole panel.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danhatton/bridgematch/internal/store"
)

func main() {
	dbPath := flag.String("db", "./data/lenders.db", "path to SQLite database file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: lender-import [--db path] <questionnaire.csv>\n")
		os.Exit(2)
	}
	csvPath := flag.Arg(0)

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("open %s: %v", csvPath, err)
	}
	defer f.Close()

	lenders, err := store.ImportCSV(f)
	if err != nil {
		log.Fatalf("import %s: %v", csvPath, err)
	}
	if len(lenders) == 0 {
		log.Fatalf("no lender rows found in %s", csvPath)
	}

	st, err := store.Open(*dbPath, nil)
	if err != nil {
		log.Fatalf("open database %s: %v", *dbPath, err)
	}
	defer st.Close()

	if err := st.SaveLenders(lenders); err != nil {
		log.Fatalf("save lenders: %v", err)
	}

	fmt.Printf("imported %d lenders into %s\n", len(lenders), *dbPath)
	for _, l := range lenders {
		fmt.Printf("  - %s\n", l.Name)
	}
}
