package challenge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytmux/client"
	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
)

const (
	defaultBaseURL = "https://www.youtube.com"
	defaultLocale  = "en_US"
)

var localePathPattern = regexp.MustCompile(`(?i)(player(?:_[a-z0-9]+)?\.vflset)/[a-z]{2,3}_[a-z]{2,3}/base\.js$`)

// ExtractorConfig contains externally tunable settings for player script fetches.
type ExtractorConfig struct {
	BaseURL   string
	UserAgent string
	Locale    string
}

// Extractor locates the player script of an asset and pulls the n transform out of it.
type Extractor struct {
	http   *client.Client
	config ExtractorConfig
	log    *logger.ComponentLogger
}

// NewExtractor creates an Extractor. A nil httpClient uses client.New().
func NewExtractor(httpClient *http.Client, cfg ExtractorConfig) *Extractor {
	c := client.New()
	if httpClient != nil {
		c.HTTPClient = httpClient
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	return &Extractor{
		http:   c,
		config: cfg,
		log:    logger.WithComponent(logger.ComponentChallenge),
	}
}

// WithLogger replaces the component logger.
func (e *Extractor) WithLogger(l *logger.Logger) *Extractor {
	if l != nil {
		e.log = l.WithComponent(logger.ComponentChallenge)
	}
	return e
}

// PlayerURL scrapes the embed page of assetID for the player script path and
// returns its absolute URL with the locale segment normalized.
func (e *Extractor) PlayerURL(ctx context.Context, assetID string) (string, error) {
	embedURL := e.config.BaseURL + "/embed/" + url.PathEscape(assetID)
	page, err := e.http.GetText(ctx, embedURL)
	if err != nil {
		return "", fmt.Errorf("%w: fetch embed page: %w", errs.ErrPlayerNotFound, err)
	}
	groups, name := firstMatch(PlayerPathPatterns, "", page)
	if groups == nil {
		return "", errs.Wrapf(errs.ErrPlayerNotFound, "no player path in embed page (%d bytes)", len(page))
	}
	path := e.normalizePlayerPath(groups[0])
	e.log.Debug("player path found", logger.Fields{"pattern": name, "path": path})
	return e.config.BaseURL + path, nil
}

func (e *Extractor) normalizePlayerPath(path string) string {
	if localePathPattern.MatchString(path) {
		return localePathPattern.ReplaceAllString(path, "${1}/"+e.config.Locale+"/base.js")
	}
	return path
}

// Extract fetches the player script for assetID and returns the n transform.
func (e *Extractor) Extract(ctx context.Context, assetID string) (types.Challenge, error) {
	playerURL, err := e.PlayerURL(ctx, assetID)
	if err != nil {
		return types.Challenge{}, err
	}
	script, err := e.http.GetText(ctx, playerURL)
	if err != nil {
		return types.Challenge{}, fmt.Errorf("%w: fetch player script: %w", errs.ErrChallengeNotFound, err)
	}
	ch, err := e.parse(script)
	if err != nil {
		return types.Challenge{}, err
	}
	ch.PlayerURL = playerURL
	e.log.Info("challenge extracted", logger.Fields{"player": playerURL, "function": ch.FuncName, "body_bytes": len(ch.Source)})
	return ch, nil
}

// ParseScript extracts the n transform from a player script.
func ParseScript(script string) (types.Challenge, error) {
	return (&Extractor{log: logger.WithComponent(logger.ComponentChallenge)}).parse(script)
}

func (e *Extractor) parse(script string) (types.Challenge, error) {
	groups, pattern := firstMatch(FuncNamePatterns, "", script)
	if groups == nil {
		return types.Challenge{}, errs.Wrapf(errs.ErrChallengeNotFound, "function name: no pattern matched")
	}
	name := groups[1]
	e.log.Debug("n call site found", logger.Fields{"pattern": pattern, "name": name, "index": groups[2]})

	if groups[2] != "" {
		resolved, err := resolveArrayElement(script, name, groups[2])
		if err != nil {
			return types.Challenge{}, err
		}
		name = resolved
	}

	param, body, pattern, err := findBody(script, name)
	if err != nil {
		return types.Challenge{}, err
	}
	e.log.Debug("n function body found", logger.Fields{"pattern": pattern, "name": name, "param": param})
	return types.Challenge{FuncName: name, Param: param, Source: body}, nil
}

func resolveArrayElement(script, name, index string) (string, error) {
	idx, err := strconv.Atoi(index)
	if err != nil {
		return "", errs.Wrapf(errs.ErrChallengeNotFound, "function array: bad index %q", index)
	}
	groups, _ := firstMatch(ArrayPatterns, regexp.QuoteMeta(name), script)
	if groups == nil {
		return "", errs.Wrapf(errs.ErrChallengeNotFound, "function array: no definition for %s", name)
	}
	elems := strings.Split(groups[1], ",")
	if idx < 0 || idx >= len(elems) {
		return "", errs.Wrapf(errs.ErrChallengeNotFound, "function array: index %d out of range for %s", idx, name)
	}
	return strings.TrimSpace(elems[idx]), nil
}

func findBody(script, name string) (param, body, pattern string, err error) {
	// a lazy capture can run past the closing brace into the next function
	wholeBody := func(groups []string) bool { return balanced(groups[2]) }
	if groups, p := firstAccepted(FuncBodyPatterns, regexp.QuoteMeta(name), script, wholeBody); groups != nil {
		return groups[1], groups[2], p, nil
	}
	param, body, ok := scanFunction(script, name)
	if !ok {
		return "", "", "", errs.Wrapf(errs.ErrChallengeNotFound, "function body: no definition for %s", name)
	}
	return param, body, "brace-scan", nil
}

var paramPattern = regexp.MustCompile(`^\s*([\w$]+)\s*\)`)

// scanFunction finds the definition of name and walks its braces, skipping
// string literals, to return the single parameter and the body.
func scanFunction(script, name string) (param, body string, ok bool) {
	defs := []string{
		name + "=function(",
		name + " = function(",
		"function " + name + "(",
	}
	start := -1
	var def string
	for _, d := range defs {
		if i := indexIdent(script, d); i >= 0 {
			start, def = i, d
			break
		}
	}
	if start < 0 {
		return "", "", false
	}
	m := paramPattern.FindStringSubmatch(script[start+len(def):])
	if m == nil {
		return "", "", false
	}
	param = m[1]

	open := strings.IndexByte(script[start:], '{')
	if open < 0 {
		return "", "", false
	}
	bodyStart := start + open + 1
	pos := bodyStart
	var strChar byte
	for brackets := 1; brackets > 0; pos++ {
		if pos >= len(script) {
			return "", "", false
		}
		b := script[pos]
		switch b {
		case '{':
			if strChar == 0 {
				brackets++
			}
		case '}':
			if strChar == 0 {
				brackets--
			}
		case '`', '"', '\'':
			if pos > 1 && script[pos-1] == '\\' && script[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	return param, script[bodyStart : pos-1], true
}

// balanced reports whether every brace in body outside string literals is
// closed within body, without the depth ever dropping below zero.
func balanced(body string) bool {
	depth := 0
	var strChar byte
	for i := 0; i < len(body); i++ {
		b := body[i]
		switch b {
		case '{':
			if strChar == 0 {
				depth++
			}
		case '}':
			if strChar == 0 {
				if depth--; depth < 0 {
					return false
				}
			}
		case '`', '"', '\'':
			if i > 0 && body[i-1] == '\\' && (i < 2 || body[i-2] != '\\') {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	return depth == 0 && strChar == 0
}

// indexIdent finds def where it is not preceded by an identifier character.
func indexIdent(s, def string) int {
	offset := 0
	for {
		i := strings.Index(s[offset:], def)
		if i < 0 {
			return -1
		}
		at := offset + i
		if at == 0 || !isIdentByte(s[at-1]) {
			return at
		}
		offset = at + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
