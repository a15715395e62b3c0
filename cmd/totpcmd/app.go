package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/jbester/otpkeeper/cmd/common"
	"github.com/jbester/otpkeeper/pkg/base32"
	"github.com/jbester/otpkeeper/pkg/otpauth"
	"github.com/jbester/otpkeeper/pkg/store"
	"github.com/jbester/otpkeeper/pkg/totp"
	"github.com/jbester/otpkeeper/pkg/view"
)

type app struct {
	cfg       common.Config
	logger    *slog.Logger
	generator totp.Generator
	out       io.Writer
	prompter  *common.Prompter

	store store.Store
	db    *store.Database

	// set when the database file does not exist yet
	askPassphrase bool
	file          *store.FileStore
}

func (a *app) ask(ctx context.Context, prompt string) (string, error) {
	if a.prompter == nil {
		return common.Stdin.Ask(ctx, prompt)
	}
	return a.prompter.Ask(ctx, prompt)
}

// open loads the database, asking for the passphrase if it is encrypted.
func (a *app) open() error {
	var path = a.cfg.DatabasePath()
	var password []byte
	if store.IsEncrypted(path) {
		p, err := common.GetPassword()
		if err != nil {
			return errors.Wrap(err, "cannot read passphrase")
		}
		password = p
	}
	a.file = store.NewFileStore(path, password, a.logger)
	a.askPassphrase = !a.file.Exists()
	a.store = a.file

	db, err := a.store.Load()
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

// save writes the database, asking for a passphrase the first time.
func (a *app) save() error {
	if a.askPassphrase && a.file != nil {
		fmt.Fprintf(a.out, "Saving configuration to %v\n", a.file.Path)
		password, err := common.GetNewPassword()
		if err != nil {
			return errors.Wrap(err, "cannot read passphrase")
		}
		a.file.Passphrase = password
		a.askPassphrase = false
	}
	return a.store.Save(a.db)
}

func (a *app) code(ctx context.Context, secret string) (string, error) {
	code, err := a.generator.Now(ctx, secret)
	if err != nil {
		return "", errors.Wrap(err, "unable to generate code")
	}
	return code, nil
}

// validateSecret enforces the boundary contract for stored secrets: a
// secret must decode to at least one byte. Strict mode additionally
// rejects characters outside the alphabet.
func (a *app) validateSecret(secret string, strict bool) error {
	if strict {
		_, err := base32.DecodeStrict(secret)
		return errors.Wrap(err, "invalid secret")
	}
	if len(base32.Decode(secret)) == 0 {
		return errors.New("invalid secret: no base32 data")
	}
	if _, err := base32.DecodeStrict(secret); err != nil {
		a.logger.Warn("secret contains characters outside the base32 alphabet; they will be ignored",
			slog.Any("error", err))
	}
	return nil
}

func (a *app) generateFromPrompt(ctx context.Context) error {
	secret, err := a.ask(ctx, "Enter secret: ")
	if err != nil {
		return errors.Wrap(err, "cannot process input")
	}
	if err = a.validateSecret(secret, false); err != nil {
		return err
	}
	code, err := a.code(ctx, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, code)
	return nil
}

func (a *app) generate(ctx context.Context, name string) error {
	secret, err := a.db.Secret(name)
	if err != nil {
		return err
	}
	code, err := a.code(ctx, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, code)
	return nil
}

func (a *app) addAccount(name, secret string, strict bool) error {
	if err := a.validateSecret(secret, strict); err != nil {
		return err
	}
	if err := a.db.Add(name, secret); err != nil {
		return err
	}
	a.logger.Info("account added", slog.String("account", name))
	return a.save()
}

func (a *app) importURI(uri, name string, strict bool) error {
	account, err := otpauth.Parse(uri)
	if err != nil {
		return err
	}
	if !account.Standard() {
		a.logger.Warn("uri requests unsupported parameters; codes use SHA1, 6 digits, 30 seconds",
			slog.String("algorithm", account.Algorithm),
			slog.Int("digits", account.Digits),
			slog.Uint64("period", account.Period))
	}
	if name == "" {
		name = account.StoreName()
	}
	if err = a.addAccount(name, account.Secret, strict); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %v\n", name)
	return nil
}

func (a *app) remove(ctx context.Context, name string) error {
	if name == "" {
		n, err := a.ask(ctx, "Account name: ")
		if err != nil {
			return err
		}
		name = n
	}
	if !a.db.Remove(name) {
		return errors.Wrapf(store.ErrAccountNotFound, "%q", name)
	}
	a.logger.Info("account removed", slog.String("account", name))
	return a.save()
}

func (a *app) verify(ctx context.Context, name, code string, skew uint) error {
	secret, err := a.db.Secret(name)
	if err != nil {
		return err
	}
	ok, err := a.generator.Verify(ctx, secret, strings.TrimSpace(code), timeNow(), skew)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("code does not match")
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}

func (a *app) export(name, pngPath string, size int) error {
	secret, err := a.db.Secret(name)
	if err != nil {
		return err
	}
	var uri = otpauth.Format(otpauth.FromStore(name, secret))
	if pngPath != "" {
		if err = otpauth.WriteQRFile(uri, pngPath, size); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote %v\n", pngPath)
		return nil
	}
	art, err := otpauth.QRString(uri)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, uri)
	fmt.Fprint(a.out, art)
	return nil
}

func (a *app) newSecret(size int) error {
	if size < 10 || size > 64 {
		return errors.Errorf("secret length must be between 10 and 64 bytes, got %d", size)
	}
	var key = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return errors.Wrap(err, "cannot generate secret")
	}
	fmt.Fprintln(a.out, base32.Encode(key))
	return nil
}

func (a *app) changePassphrase() error {
	if a.file == nil {
		return errors.New("no database file")
	}
	password, err := common.GetNewPassword()
	if err != nil {
		return err
	}
	a.file.Passphrase = password
	a.askPassphrase = false
	return a.save()
}

// add runs the add screen. Interrupting its prompts is an error, unlike
// interrupting a screen that only displays.
func (a *app) add(ctx context.Context, opts addOptions) error {
	if err := a.navigate(ctx, view.AddState(), opts); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "add interrupted")
	}
	return nil
}

// navigate runs a single screen to completion, or until ctx is cancelled.
func (a *app) navigate(ctx context.Context, state view.State, opts addOptions) error {
	var router = view.NewRouter(a.screens(opts), a.logger)
	defer router.Close()
	if err := router.Navigate(ctx, state); err != nil {
		return err
	}
	return router.Wait()
}
