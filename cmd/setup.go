package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/pipeline"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagSetupSandbox     bool
	flagSetupDescription string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Register this device with bunq",
	Long: "Registers a new device for your bunq API key. Anything stored before, " +
		"including the tracked account and cached balance, is cleared first.",
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&flagSetupSandbox, "sandbox", false, "Use the bunq sandbox environment")
	setupCmd.Flags().StringVar(&flagSetupDescription, "description", "", "Device name shown in the bunq app")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagSetupSandbox {
		cfg.Bunq.Sandbox = true
	}
	if flagSetupDescription != "" {
		cfg.Bunq.DeviceDescription = flagSetupDescription
	}

	fmt.Println()
	fmt.Println("  bunqday setup")
	fmt.Printf("  Environment: %s\n\n", config.BaseURL(cfg))

	existing := config.GetAPIKey(cfg)
	if existing != "" {
		fmt.Printf("  Current API key: %s\n", config.MaskKey(existing))
		fmt.Print("  API key (Enter to keep): ")
	} else {
		fmt.Print("  API key: ")
	}
	apiKey, err := readSecret(os.Stdin)
	fmt.Println()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading API key: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = existing
	}
	if apiKey == "" {
		return errors.New("an API key is required: create one in the bunq app under Developers > API keys")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client, err := bunq.NewClient(bunqConfig(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	fmt.Println("  Registering device...")
	bundle, err := pipeline.Onboard(ctx, st, client, bunq.Device{
		Description:  cfg.Bunq.DeviceDescription,
		APIKey:       apiKey,
		PermittedIPs: cfg.Bunq.PermittedIPs,
	})
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Device %q registered.\n", cfg.Bunq.DeviceDescription)
	fmt.Printf("  Server key:  %s\n", keys.Fingerprint(bundle.ServerPublicKey))
	fmt.Printf("  Client key:  %s\n", keys.Fingerprint(&bundle.PrivateKey.PublicKey))
	fmt.Println()
	fmt.Println("  The server key is trusted from now on. If bunq's key ever changes,")
	fmt.Println("  responses will fail verification until you run `bunqday setup` again.")
	fmt.Printf("  Config: %s\n\n", config.ConfigPath())
	return nil
}

// readSecret reads one line without echo when stdin is a terminal, and a
// plain line otherwise.
func readSecret(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
