package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophbell/internal/client/services"
	"github.com/dmitrijs2005/gophbell/internal/common"
)

func (a *App) Register(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email:", a.out)
	if err != nil {
		return err
	}
	first, err := GetSimpleText(a.reader, "Enter first name:", a.out)
	if err != nil {
		return err
	}
	last, err := GetSimpleText(a.reader, "Enter last name:", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res, err := a.auth.SignUp(ctx, services.SignUpInput{
		Email:     email,
		Password:  string(password),
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		return err
	}

	if res.NeedsConfirmation {
		fmt.Fprintf(a.out, "Account created. Check %s for a confirmation link, then log in.\n", email)
		return nil
	}

	fmt.Fprintf(a.out, "Account created. Signed in as %s\n", email)
	return a.signedIn(res.User.ID, email)
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email:", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	remember, err := GetConfirmation(a.reader, "Remember me on this device?", a.out)
	if err != nil {
		return err
	}

	user, err := a.auth.SignIn(ctx, services.SignInInput{Email: email, Password: string(password), RememberMe: remember})
	if errors.Is(err, common.ErrUnauthorized) {
		fmt.Fprintln(a.out, "Invalid email or password")
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := a.profiles.Load(ctx); err != nil {
		a.log.Warn(ctx, "could not load profile", "error", err)
	}

	fmt.Fprintf(a.out, "Signed in as %s\n", email)
	return a.signedIn(user.ID, email)
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email:", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.RequestPasswordReset(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "If %s has an account, a reset link is on its way.\n", email)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.auth.SignOut(ctx)
	if serr := a.signedOut(); serr != nil {
		a.log.Warn(ctx, "reset unread counter", "error", serr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}
