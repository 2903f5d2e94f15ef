package cookies

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Cookie is one entry from a Netscape-format cookie file
type Cookie struct {
	Domain string
	Path   string
	Secure bool
	Name   string
	Value  string
}

// Jar holds cookies parsed from one file
type Jar struct {
	cookies []Cookie
}

// ParseNetscape reads a Netscape-format cookie file. Comment lines and
// blank lines are ignored; the #HttpOnly_ prefix on domains is stripped.
func ParseNetscape(r io.Reader) (*Jar, error) {
	jar := &Jar{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
			continue
		}

		line = strings.TrimPrefix(line, "#HttpOnly_")
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 tab-separated fields, got %d", lineNo, len(fields))
		}

		jar.cookies = append(jar.cookies, Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return jar, nil
}

// Header builds a Cookie header value for the given domain. Cookies whose
// domain is a suffix match (with or without a leading dot) are included.
func (j *Jar) Header(domain string) string {
	var parts []string
	for _, c := range j.cookies {
		if !domainMatches(c.Domain, domain) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Len returns the number of cookies in the jar
func (j *Jar) Len() int {
	return len(j.cookies)
}

func domainMatches(cookieDomain, requestDomain string) bool {
	if requestDomain == "" {
		return true
	}
	cookieDomain = strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	requestDomain = strings.ToLower(requestDomain)
	return requestDomain == cookieDomain || strings.HasSuffix(requestDomain, "."+cookieDomain)
}
