package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophbell/internal/client/models"
)

func (a *App) Profile(ctx context.Context) error {
	p, err := a.profiles.Load(ctx)
	if err != nil {
		return err
	}
	printProfile(a, p)
	return nil
}

func printProfile(a *App, p models.Profile) {
	verified := func(ok bool) string {
		if ok {
			return "verified"
		}
		return "not verified"
	}

	fmt.Fprintf(a.out, "Name:    %s\n", p.DisplayName())
	fmt.Fprintf(a.out, "Email:   %s (%s)\n", p.Email, verified(p.EmailVerified))
	if p.Phone != "" {
		fmt.Fprintf(a.out, "Phone:   %s (%s)\n", p.Phone, verified(p.PhoneVerified))
	}
	if p.AvatarURL != "" {
		fmt.Fprintf(a.out, "Avatar:  %s\n", p.AvatarURL)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "Member since %s\n", p.CreatedAt.Local().Format("2006-01-02"))
	}
}

// EditProfile asks for each editable field; an empty answer keeps the
// current value.
func (a *App) EditProfile(ctx context.Context) error {
	cur, err := a.profiles.Load(ctx)
	if err != nil {
		return err
	}

	var upd models.ProfileUpdate
	fields := []struct {
		label   string
		current string
		dst     **string
	}{
		{"first name", cur.FirstName, &upd.FirstName},
		{"last name", cur.LastName, &upd.LastName},
		{"phone (+15551234567)", cur.Phone, &upd.Phone},
	}
	for _, f := range fields {
		v, err := GetSimpleText(a.reader, fmt.Sprintf("Enter %s [%s]:", f.label, f.current), a.out)
		if err != nil {
			return err
		}
		if v != "" && v != f.current {
			*f.dst = &v
		}
	}

	if upd.Empty() {
		fmt.Fprintln(a.out, "Nothing changed")
		return nil
	}

	p, err := a.profiles.Update(ctx, upd)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile updated")
	printProfile(a, p)
	return nil
}

func (a *App) Avatar(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("avatar <path to image>")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open avatar: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat avatar: %w", err)
	}

	p, err := a.profiles.UploadAvatar(ctx, f, st.Size(), "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Avatar updated: %s\n", p.AvatarURL)
	return nil
}
