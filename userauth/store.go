package userauth

import (
	"bytes"
	"encoding/csv"
	"io"
	"io/ioutil"
	"strings"

	"github.com/jameskeane/bcrypt"
	passlib "gopkg.in/hlandau/passlib.v1"

	"blitter.com/go/sshx/logger"
)

// FileStore is a PasswordVerifier backed by a flat, colon-delimited
// "username:salt:bcryptHash" file, matching /etc/xs.passwd's format and
// check logic verbatim (same CSV scan, same dummy-record timing-attack
// defense, same security-scrub of the read buffer after use) — this is
// auth.go's AuthUserByPasswd adapted to the PasswordVerifier interface
// instead of being called synchronously out of a hand-rolled login
// prompt.
type FileStore struct {
	// reader abstracts file IO the way auth.go's AuthCtx does, so tests
	// can substitute an in-memory reader.
	reader func(string) ([]byte, error)
	path   string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{reader: ioutil.ReadFile, path: path}
}

func (f *FileStore) VerifyPassword(user, password string) (bool, error) {
	if f.reader == nil {
		f.reader = ioutil.ReadFile
	}
	b, err := f.reader(f.path)
	if err != nil {
		_ = logger.LogErr("cannot read " + f.path + ": " + err.Error())
		return false, err
	}
	defer scrub(b)

	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = ':'
	r.Comment = '#'
	r.FieldsPerRecord = 3

	found := false
	match := false
	for {
		record, err := r.Read()
		if err == io.EOF {
			if !found {
				// dummy record: keeps failure timing indistinguishable
				// from a real user with a wrong password.
				_, _ = bcrypt.Hash(password, "$2a$12$l0coBlRDNEJeQVl6GdEPbU")
			}
			break
		}
		if err != nil {
			return false, err
		}
		if record[0] == user {
			found = true
			computed, err := bcrypt.Hash(password, record[1])
			if err == nil && computed == record[2] {
				match = true
			}
			break
		}
	}
	return match, nil
}

func scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SystemShadowStore verifies against the OS shadow file via passlib,
// for deployments that want to reuse system account passwords rather
// than a dedicated credential file. Grounded on auth.go's VerifyPass.
type SystemShadowStore struct {
	reader       func(string) ([]byte, error)
	shadowPath   string
}

func NewSystemShadowStore(shadowPath string) *SystemShadowStore {
	return &SystemShadowStore{reader: ioutil.ReadFile, shadowPath: shadowPath}
}

func (s *SystemShadowStore) VerifyPassword(user, password string) (bool, error) {
	if s.reader == nil {
		s.reader = ioutil.ReadFile
	}
	passlib.UseDefaults(passlib.Defaults20180601)

	data, err := s.reader(s.shadowPath)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 2 || fields[0] != user {
			continue
		}
		if err := passlib.VerifyNoUpgrade(password, fields[1]); err != nil {
			return false, nil
		}
		return true, nil
	}
	return false, nil
}
