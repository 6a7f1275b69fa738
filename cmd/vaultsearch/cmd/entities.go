package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/importer"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/store"
)

var (
	putListID    string
	putElementID string

	mailSubject    string
	mailBody       string
	mailFrom       string
	mailTo         []string
	mailReceivedAt string

	contactFirst   string
	contactLast    string
	contactEmail   string
	contactCompany string
	contactComment string

	folderName    string
	folderType    string
	folderMailbox string
)

// openImporter opens the store with an importer over it. Nothing listens
// for updates in a one-shot command, so none are published.
func openImporter() (*store.Store, *importer.Importer, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return s, importer.New(s, nil, logger), nil
}

// parseReceived accepts an RFC 3339 timestamp or a day. Empty means now.
func parseReceived(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day, err := restriction.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("received %q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return *day, nil
}

var putMailCmd = &cobra.Command{
	Use:   "put-mail",
	Short: "Create or update a mail",
	Example: `  vaultsearch put-mail --list inbox --id m1 --subject "Invoice" \
    --from billing@example.com --to me@example.com --received 2024-03-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		received, err := parseReceived(mailReceivedAt)
		if err != nil {
			return err
		}

		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		m := &entity.Mail{
			ID:         entity.ID{ListID: putListID, ElementID: putElementID},
			Subject:    mailSubject,
			Body:       mailBody,
			Sender:     mailFrom,
			Recipients: mailTo,
			ReceivedAt: received,
		}
		op, err := im.PutMail(cmd.Context(), m)
		if err != nil {
			return err
		}
		fmt.Printf("mail %s: %s\n", m.ID, op)
		return nil
	},
}

var putContactCmd = &cobra.Command{
	Use:     "put-contact",
	Short:   "Create or update a contact",
	Example: `  vaultsearch put-contact --list contacts --id c1 --first Ada --last Lovelace --email ada@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		c := &entity.Contact{
			ID:        entity.ID{ListID: putListID, ElementID: putElementID},
			FirstName: contactFirst,
			LastName:  contactLast,
			Email:     contactEmail,
			Company:   contactCompany,
			Comment:   contactComment,
		}
		op, err := im.PutContact(cmd.Context(), c)
		if err != nil {
			return err
		}
		fmt.Printf("contact %s: %s\n", c.ID, op)
		return nil
	},
}

var putFolderCmd = &cobra.Command{
	Use:     "put-folder",
	Short:   "Create or update a mail folder",
	Example: `  vaultsearch put-folder --list inbox --name Inbox --type inbox`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if putListID == "" {
			return fmt.Errorf("--list is required")
		}
		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		f := &store.Folder{ListID: putListID, Name: folderName, Type: folderType, Mailbox: folderMailbox}
		op, err := im.PutFolder(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Printf("folder %s: %s\n", f.ListID, op)
		return nil
	},
}

var deleteEntityCmd = &cobra.Command{
	Use:   "delete-entity <mail|contact|folder> <list-id> [element-id]",
	Short: "Delete a mail, contact or folder",
	Long: `Delete a mail or contact by list and element id, or a folder by list
id. Deleting a folder deletes the mail in it.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := entity.Type(args[0])
		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		var deleted bool
		switch {
		case typ == entity.TypeFolder:
			if len(args) != 2 {
				return fmt.Errorf("folders are deleted by list id only")
			}
			deleted, err = im.DeleteFolder(cmd.Context(), args[1])
		case len(args) != 3:
			return fmt.Errorf("deleting a %s needs a list id and an element id", typ)
		default:
			deleted, err = im.Delete(cmd.Context(), typ, entity.ID{ListID: args[1], ElementID: args[2]})
		}
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%s not found", typ)
		}
		fmt.Printf("%s deleted\n", typ)
		return nil
	},
}

var moveMailCmd = &cobra.Command{
	Use:   "move-mail <list-id> <element-id> <to-list-id>",
	Short: "Move a mail to another folder",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		moved, err := im.MoveMail(cmd.Context(), entity.ID{ListID: args[0], ElementID: args[1]}, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("mail moved to %s\n", moved)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import mail, contacts and folders from JSON lines",
	Long: `Import records from a JSON lines file, one record per line. Use - to
read from stdin. Each record names its type and carries the entity:

  {"type":"folder","folder":{"list_id":"inbox","name":"Inbox","type":"inbox"}}
  {"type":"mail","mail":{"id":{"list_id":"inbox","element_id":"m1"},"subject":"Hi"}}
  {"type":"contact","contact":{"id":{"list_id":"contacts","element_id":"c1"},"last_name":"Smith"}}

Malformed records are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import: %w", err)
			}
			defer f.Close()
			in = f
		}

		s, im, err := openImporter()
		if err != nil {
			return err
		}
		defer s.Close()

		sum, err := im.ImportJSONL(cmd.Context(), in)
		fmt.Printf("Imported: %d created, %d updated, %d failed\n", sum.Created, sum.Updated, sum.Failed)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{putMailCmd, putContactCmd, putFolderCmd} {
		c.Flags().StringVar(&putListID, "list", "", "List id (folder or contact list)")
	}
	for _, c := range []*cobra.Command{putMailCmd, putContactCmd} {
		c.Flags().StringVar(&putElementID, "id", "", "Element id")
	}

	putMailCmd.Flags().StringVar(&mailSubject, "subject", "", "Subject")
	putMailCmd.Flags().StringVar(&mailBody, "body", "", "Body text")
	putMailCmd.Flags().StringVar(&mailFrom, "from", "", "Sender address")
	putMailCmd.Flags().StringSliceVar(&mailTo, "to", nil, "Recipient addresses")
	putMailCmd.Flags().StringVar(&mailReceivedAt, "received", "", "Receive time, RFC 3339 or YYYY-MM-DD (default now)")

	putContactCmd.Flags().StringVar(&contactFirst, "first", "", "First name")
	putContactCmd.Flags().StringVar(&contactLast, "last", "", "Last name")
	putContactCmd.Flags().StringVar(&contactEmail, "email", "", "Email address")
	putContactCmd.Flags().StringVar(&contactCompany, "company", "", "Company")
	putContactCmd.Flags().StringVar(&contactComment, "comment", "", "Comment")

	putFolderCmd.Flags().StringVar(&folderName, "name", "", "Display name")
	putFolderCmd.Flags().StringVar(&folderType, "type", store.FolderCustom, "Folder type: inbox, sent, trash, archive, spam, draft or custom")
	putFolderCmd.Flags().StringVar(&folderMailbox, "mailbox", "", "Mailbox the folder belongs to")

	rootCmd.AddCommand(putMailCmd, putContactCmd, putFolderCmd, deleteEntityCmd, moveMailCmd, importCmd)
}
