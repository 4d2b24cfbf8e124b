package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vortex-fintech/go-contacts/contact"
	apperrors "github.com/vortex-fintech/go-contacts/errors"
)

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Print a contact, creating a bare record when it is unknown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.svc.GetOrCreate(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Type    string
	Exclude string
}

var typeNames = map[string]contact.Type{
	contact.TypeUser.String():          contact.TypeUser,
	contact.TypePhoneBook.String():     contact.TypePhoneBook,
	contact.TypePhoneBookUser.String(): contact.TypePhoneBookUser,
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Type != "" && opts.Exclude != "" {
				return errors.New("--type and --exclude cannot be combined")
			}
			var typ contact.Type
			if opts.Type != "" {
				t, ok := typeNames[opts.Type]
				if !ok {
					return fmt.Errorf("unknown type %q", opts.Type)
				}
				typ = t
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			var cs []contact.Contact
			switch {
			case typ.IsSet():
				cs, err = a.svc.ListByType(ctx, typ)
			case opts.Exclude != "":
				cs, err = a.svc.ListExcluding(ctx, opts.Exclude)
			default:
				cs, err = a.svc.GetAll(ctx)
			}
			if err != nil {
				return describe(err)
			}
			return writeContacts(cmd.OutOrStdout(), opts.Format, cs)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "only this type (user|phone_book|phone_book_user)")
	cmd.Flags().StringVar(&opts.Exclude, "exclude", "", "omit this user id")

	return cmd
}

func writeContacts(w io.Writer, format string, cs []contact.Contact) error {
	if format == "json" {
		if cs == nil {
			cs = []contact.Contact{}
		}
		return json.NewEncoder(w).Encode(cs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tTYPE\tNUMBER\tNAME")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.UserID, c.Type, c.FormattedNumber, c.FullName)
	}
	return tw.Flush()
}

// describe prefixes err with its mapped status code.
func describe(err error) error {
	resp := apperrors.FromContact(err)
	if resp.Reason == "" {
		return fmt.Errorf("%s: %w", resp.Code, err)
	}
	return fmt.Errorf("%s (%s): %w", resp.Code, resp.Reason, err)
}
