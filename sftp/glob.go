package sftp

import "path"

// ReadDirEntries drains an OPENDIR/READDIR iterator fully, the shape
// usftp/match.go's glob helper expects to walk against. Callers wanting
// the lazy form should use OpenDir directly instead.
func (c *Client) ReadDirEntries(dir string) ([]DirEntry, error) {
	it, err := c.OpenDir(dir)
	if err != nil {
		return nil, err
	}
	var entries []DirEntry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return entries, it.Err()
}

// Glob returns the names of all remote files matching pattern, or nil
// if none match. Pattern syntax matches path.Match. Grounded on
// usftp/match.go's Glob/glob pair, adapted to this client's Stat/
// ReadDirEntries instead of usftp's FileStat-returning equivalents; the
// only returned error is a malformed pattern, same as the original —
// filesystem errors while walking are swallowed exactly as usftp does.
func (c *Client) Glob(pattern string) ([]string, error) {
	if !hasGlobMeta(pattern) {
		if _, err := c.Lstat(pattern); err != nil {
			return nil, nil
		}
		return []string{pattern}, nil
	}

	dir, file := path.Split(pattern)
	dir = cleanGlobDir(dir)

	if !hasGlobMeta(dir) {
		return c.globDir(dir, file, nil)
	}

	if dir == pattern {
		return nil, path.ErrBadPattern
	}

	dirMatches, err := c.Glob(dir)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, d := range dirMatches {
		matches, err = c.globDir(d, file, matches)
		if err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func cleanGlobDir(p string) string {
	switch p {
	case "":
		return "."
	case "/":
		return p
	default:
		return p[:len(p)-1]
	}
}

func (c *Client) globDir(dir, pattern string, matches []string) ([]string, error) {
	fi, err := c.Stat(dir)
	if err != nil {
		return matches, nil
	}
	if !fi.IsDir() {
		return matches, nil
	}
	entries, err := c.ReadDirEntries(dir)
	if err != nil {
		return matches, nil
	}
	for _, e := range entries {
		matched, err := path.Match(pattern, e.Filename)
		if err != nil {
			return matches, err
		}
		if matched {
			matches = append(matches, path.Join(dir, e.Filename))
		}
	}
	return matches, nil
}

func hasGlobMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '\\':
			return true
		}
	}
	return false
}
