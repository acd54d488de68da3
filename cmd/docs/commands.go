package docs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [json]",
		Short: "Saves a document and prints its identifier",
		Long: `Saves a document. The argument is the JSON data of the document, "-" reads it from stdin.
Without --id a new identifier is assigned, with --id an existing document is replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			data, err := readData(args[0])
			if err != nil {
				return err
			}

			doc := util.Document{Data: data}
			if hex, _ := cmd.Flags().GetString("id"); hex != "" {
				if doc.ID, err = objectid.FromHex(hex); err != nil {
					return err
				}
			}

			saved, err := c.Save(doc)
			if err != nil {
				return err
			}
			fmt.Println(saved.ID.Hex())
			return nil
		}),
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Prints the document with the given identifier",
		Args:  cobra.ExactArgs(1),
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			id, err := objectid.FromHex(args[0])
			if err != nil {
				return err
			}
			doc, found, err := c.FindOneById(id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("document %s not found", id)
			}
			return printDocument(doc)
		}),
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Prints all documents ordered by identifier, one per line",
		Args:  cobra.NoArgs,
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			docs, err := c.FindAll()
			if err != nil {
				return err
			}
			for doc := range docs {
				if err := printDocument(doc); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	rmCmd = &cobra.Command{
		Use:   "rm [id]...",
		Short: "Removes the documents with the given identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			for _, arg := range args {
				id, err := objectid.FromHex(arg)
				if err != nil {
					return err
				}
				if err := c.Remove(id); err != nil {
					return err
				}
			}
			fmt.Printf("removed %d document(s)\n", len(args))
			return nil
		}),
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all documents of the collection",
		Args:  cobra.NoArgs,
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			if err := c.RemoveAll(); err != nil {
				return err
			}
			fmt.Println("collection cleared")
			return nil
		}),
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of documents",
		Args:  cobra.NoArgs,
		RunE: withCollection(func(cmd *cobra.Command, args []string, c *collection) error {
			n, err := c.Count()
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		}),
	}
)

func init() {
	putCmd.Flags().String("id", "", util.WrapString("Identifier (24 hex characters) of the document to replace"))
}

// readData returns the JSON data given as argument (or stdin for "-")
func readData(arg string) (json.RawMessage, error) {
	raw := []byte(arg)
	if arg == "-" {
		var err error
		if raw, err = io.ReadAll(os.Stdin); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("document data is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// printDocument prints a document as a single line of JSON
func printDocument(doc util.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
