// Command xspasswd-tool adds or updates a user's entry in the
// colon-delimited "username:salt:bcryptHash" credential file consumed
// by userauth.FileStore, matching /etc/xs.passwd's format. Adapted
// from xspasswd/xspasswd.go, trading its hand-rolled CSV rewrite loop
// for the same one otherwise (the format, bcrypt parameters, and
// temp-file-then-rename swap are all kept verbatim) but reading the
// password with this repository's own terminal package instead of the
// teacher's xs.ReadPassword.
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jameskeane/bcrypt"

	"blitter.com/go/sshx/terminal"
)

func main() {
	var userName string
	var pfName string

	flag.StringVar(&userName, "u", "", "username")
	flag.StringVar(&pfName, "f", "/etc/sshx.passwd", "passwd file")
	flag.Parse()

	if userName == "" {
		log.Fatal("specify username with -u")
	}

	fmt.Print("New Password: ")
	pw1, err := terminal.ReadPassword(os.Stdin.Fd())
	fmt.Println()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Print("Confirm: ")
	pw2, err := terminal.ReadPassword(os.Stdin.Fd())
	fmt.Println()
	if err != nil {
		log.Fatal(err)
	}

	if !bytes.Equal(pw1, pw2) {
		log.Fatal("new passwords do not match")
	}
	newPassword := string(pw1)

	salt, err := bcrypt.Salt(12)
	if err != nil {
		log.Fatal("bcrypt.Salt: ", err)
	}
	hash, err := bcrypt.Hash(newPassword, salt)
	if err != nil || !bcrypt.Match(newPassword, hash) {
		log.Fatal("bcrypt.Hash/Match: ", err)
	}

	if err := upsertRecord(pfName, userName, salt, hash); err != nil {
		log.Fatal(err)
	}
}

func upsertRecord(pfName, uname, salt, hash string) error {
	b, err := os.ReadFile(pfName)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = ':'
	r.Comment = '#'
	r.FieldsPerRecord = 3

	var records [][]string
	if len(b) > 0 {
		records, err = r.ReadAll()
		if err != nil {
			return err
		}
	}

	found := false
	for i := range records {
		if records[i][0] == uname {
			found = true
			records[i][1] = salt
			records[i][2] = hash
		}
	}
	if !found {
		records = append(records, []string{uname, salt, hash})
	}

	outFile, err := os.CreateTemp("", "sshx-passwd")
	if err != nil {
		return err
	}
	w := csv.NewWriter(outFile)
	w.Comma = ':'
	if err := w.Write([]string{"#username", "salt", "authCookie"}); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	if err := w.Error(); err != nil {
		return err
	}
	if err := outFile.Close(); err != nil {
		return err
	}

	return os.Rename(outFile.Name(), pfName)
}
