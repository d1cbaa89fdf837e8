package cli

import (
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

func newWhatsAppCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whatsapp",
		Aliases: []string{"wa"},
		Short:   "Link and inspect the server's WhatsApp account",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the WhatsApp connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.WhatsAppStatus(cmd.Context())
			if err != nil {
				return err
			}
			if st.Connected {
				a.out.Success("%s", st.Message)
				return nil
			}
			a.out.Warning("%s", st.Message)
			return nil
		},
	}

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect, or start linking a new device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.WhatsAppConnect(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Success("%s", resp.Message)
			return nil
		},
	}

	var yes bool
	disconnect := &cobra.Command{
		Use:   "disconnect",
		Short: "Log out and forget the linked device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := a.confirm("Unlink the WhatsApp device? A new QR scan will be needed.")
				if err != nil {
					return err
				}
				if !ok {
					a.out.Print("Aborted.")
					return nil
				}
			}
			resp, err := a.client.WhatsAppDisconnect(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Success("%s", resp.Message)
			return nil
		},
	}
	disconnect.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	var wait time.Duration
	qr := &cobra.Command{
		Use:   "qr",
		Short: "Print the pairing QR code to scan with the phone",
		Long: `Print the pairing QR code. Run "wacrm whatsapp connect" first when no
session exists. With --wait the command polls until a code is available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deadline := time.Now().Add(wait)

			for {
				resp, err := a.client.WhatsAppQR(ctx)
				if err != nil {
					return err
				}
				if resp.Available {
					code, err := qrcode.New(resp.QRCode, qrcode.Medium)
					if err != nil {
						return fmt.Errorf("failed to render QR code: %w", err)
					}
					a.out.Print("%s", code.ToSmallString(false))
					a.out.Print("Open WhatsApp > Linked devices > Link a device and scan the code.")
					return nil
				}
				if !time.Now().Before(deadline) {
					return fmt.Errorf("%s", resp.Message)
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
				}
			}
		},
	}
	qr.Flags().DurationVar(&wait, "wait", 0, "keep polling this long for a code")

	cmd.AddCommand(status, connect, disconnect, qr)
	return cmd
}
