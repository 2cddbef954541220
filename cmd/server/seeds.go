package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/remotedom/internal/domain/seed"
)

var seedPattern string

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Seed document commands",
}

var seedsValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Parse and validate every seed document under dir",
	Long: `Walks dir, parses every file matching --pattern and checks that each
document names a surface and that every node is an element or a text.
Exits non-zero when any document is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeedsValidate,
}

func runSeedsValidate(cmd *cobra.Command, args []string) error {
	loader, err := seed.NewLoader(seedPattern)
	if err != nil {
		return err
	}

	docs, loadErr := loader.Load(cmd.Context(), args[0])
	errs := []error{}
	if loadErr != nil {
		errs = append(errs, loadErr)
	}

	out := cmd.OutOrStdout()
	uris := make(map[string]string, len(docs))
	for _, doc := range docs {
		if err := seed.Validate(doc); err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := uris[doc.URI]; dup {
			errs = append(errs, fmt.Errorf("%s: uri %s already declared by %s", doc.Path, doc.URI, prev))
			continue
		}
		uris[doc.URI] = doc.Path

		nodes := 0
		for _, n := range doc.Nodes {
			nodes += n.Count()
		}
		fmt.Fprintf(out, "ok   %s  %s (%d nodes)\n", doc.Path, doc.URI, nodes)
	}

	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
		}
		return errors.New("seed validation failed")
	}
	fmt.Fprintf(out, "%d documents valid\n", len(uris))
	return nil
}

func init() {
	seedsValidateCmd.Flags().StringVar(&seedPattern, "pattern", seed.DefaultPattern, "Glob of seed files relative to dir")
}
