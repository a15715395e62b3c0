package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jbester/otpkeeper/cmd/common"
	"github.com/jbester/otpkeeper/pkg/store"
	"github.com/jbester/otpkeeper/pkg/totp"
	"github.com/jbester/otpkeeper/pkg/view"
)

var (
	directory = kingpin.Flag("dir", "Directory holding the account database").String()
	logLevel  = kingpin.Flag("log-level", "Log level (debug, info, warn, error)").String()

	generate = kingpin.Command("generate", "Generate a totp token for an account")
	account  = generate.Arg("account", "Account name").String()

	add        = kingpin.Command("add", "Add a new totp account")
	newAccount = add.Arg("account", "Account name").String()
	addStrict  = add.Flag("strict", "Reject secrets containing characters outside the base32 alphabet").Bool()

	importCmd    = kingpin.Command("import", "Add an account from an otpauth:// uri")
	importURI    = importCmd.Arg("uri", "otpauth://totp/... uri").Required().String()
	importName   = importCmd.Flag("name", "Account name, defaults to Issuer:Name from the uri").String()
	importStrict = importCmd.Flag("strict", "Reject secrets containing characters outside the base32 alphabet").Bool()

	remove        = kingpin.Command("remove", "Remove a totp account")
	removeAccount = remove.Arg("account", "Account name").String()

	list = kingpin.Command("list", "List accounts")

	watch        = kingpin.Command("watch", "Show the code for an account, refreshing until interrupted")
	watchAccount = watch.Arg("account", "Account name").Required().String()

	verify        = kingpin.Command("verify", "Check a code against an account")
	verifyAccount = verify.Arg("account", "Account name").Required().String()
	verifyCode    = verify.Arg("code", "6 digit code").Required().String()
	verifySkew    = verify.Flag("skew", "Adjacent 30 second windows to accept").Default("-1").Int()

	export        = kingpin.Command("export", "Print the otpauth uri and QR code for an account")
	exportAccount = export.Arg("account", "Account name").Required().String()
	exportPNG     = export.Flag("png", "Write the QR code to a PNG file instead").String()
	exportSize    = export.Flag("size", "PNG size in pixels").Default("256").Int()

	newSecret     = kingpin.Command("new-secret", "Generate a random secret")
	newSecretSize = newSecret.Flag("bytes", "Secret length in bytes").Default("20").Int()

	passphrase = kingpin.Command("passphrase", "Set or remove a passphrase")
)

func main() {
	var cmd = kingpin.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		common.Die(err.Error())
	}
	if *directory != "" {
		cfg.Directory = *directory
	}
	if *logLevel != "" {
		if _, err := common.ParseLevel(*logLevel); err != nil {
			common.Die(err.Error())
		}
		cfg.LogLevel = *logLevel
	}
	var logger = common.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var a = &app{
		cfg:       cfg,
		logger:    logger,
		generator: totp.NewGenerator(),
		out:       os.Stdout,
		prompter:  common.Stdin,
	}

	if cmd == generate.FullCommand() && *account == "" {
		if err := a.generateFromPrompt(ctx); err != nil {
			common.Die(err.Error())
		}
		return
	}
	if cmd == newSecret.FullCommand() {
		if err := a.newSecret(*newSecretSize); err != nil {
			common.Die(err.Error())
		}
		return
	}

	if err := a.open(); err != nil {
		common.Die(err.Error())
	}

	switch cmd {
	case generate.FullCommand():
		err = a.generate(ctx, *account)
	case add.FullCommand():
		err = a.add(ctx, addOptions{name: *newAccount, strict: *addStrict})
	case importCmd.FullCommand():
		err = a.importURI(*importURI, *importName, *importStrict)
	case remove.FullCommand():
		err = a.remove(ctx, *removeAccount)
	case list.FullCommand():
		err = a.navigate(ctx, view.ListState(), addOptions{})
	case watch.FullCommand():
		err = a.navigate(ctx, view.CodeState(*watchAccount), addOptions{})
	case verify.FullCommand():
		var skew = cfg.Skew
		if *verifySkew >= 0 {
			skew = uint(*verifySkew)
		}
		err = a.verify(ctx, *verifyAccount, *verifyCode, skew)
	case export.FullCommand():
		err = a.export(*exportAccount, *exportPNG, *exportSize)
	case passphrase.FullCommand():
		err = a.changePassphrase()
	}
	if err != nil {
		logger.Debug("command failed", slog.String("command", cmd), slog.Any("error", err))
		if errors.Is(err, store.ErrAccountNotFound) {
			common.Die("No account found")
		}
		common.Die(fmt.Sprintf("Error: %v", err))
	}
}
