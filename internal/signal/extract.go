package signal

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"signal_relay/internal/models"
)

var (
	// ErrNoSignal means the text holds no complete trade call. It is not a failure.
	ErrNoSignal = errors.New("no signal")
	// ErrProviderRejected means the provider allow-list gate refused the signal.
	ErrProviderRejected = errors.New("provider rejected")
	// ErrQuoteMismatch means the signal quotes a different asset than the one traded.
	ErrQuoteMismatch = errors.New("quote mismatch")
)

// separators vendors put between a label and its value
const sep = `[\s:：*·•→=>)\-]*`

// fieldPatterns is an ordered list of alternatives for one field; the first
// pattern that yields a parseable price wins.
type fieldPatterns []*regexp.Regexp

func (fp fieldPatterns) find(text string) (float64, bool) {
	for _, re := range fp {
		m := re.FindStringSubmatch(text)
		if m == nil || m[2] == "%" {
			continue
		}
		if v, ok := ParsePrice(m[1]); ok {
			return v, true
		}
	}
	return 0, false
}

var (
	entryPatterns = fieldPatterns{
		regexp.MustCompile(`(?im)(?:^|[^\w-])Entry(?:\s*(?:Price|Zone|Point|Target)s?)?` + sep + priceToken),
		regexp.MustCompile(`(?i)\b(?:Buy|Sell|Open)\s+(?:Price|At|Zone)` + sep + priceToken),
	}
	stopPatterns = fieldPatterns{
		regexp.MustCompile(`(?i)\bStop[\s-]*Loss` + sep + priceToken),
		regexp.MustCompile(`(?i)\b(?:SL|Stop)\b` + sep + priceToken),
	}
	takeProfitPatterns = slotPatterns(models.MaxTakeProfits, `(?:TP|Target|Take[\s-]*Profit)`, false)
	averagingPatterns  = slotPatterns(models.MaxAveraging, `(?:DCA|Averag(?:e|ing)|Re-?entry)`, true)

	providerPattern = regexp.MustCompile(`(?i)\b(?:Trader|Caller|Signal\s+by|Provider)` + `[\s:：*·•\-]+@?([A-Za-z0-9_.]+)`)
)

// slotPatterns builds per-slot alternatives such as "TP2: 1.5" or "Target 2 - 1.5".
// With bareFirst the first slot also accepts an unnumbered label ("DCA: 0.5").
func slotPatterns(n int, label string, bareFirst bool) []fieldPatterns {
	out := make([]fieldPatterns, n)
	for i := 0; i < n; i++ {
		out[i] = fieldPatterns{
			regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\s*%d\b`, label, i+1) + sep + priceToken),
		}
		if i == 0 && bareFirst {
			out[i] = append(out[i], regexp.MustCompile(`(?i)\b`+label+`\b`+`[\s:：*·•→=>\-]+`+priceToken))
		}
	}
	return out
}

// Options configures extraction gates.
type Options struct {
	// Quote is the traded quote asset; signals quoting another asset are rejected.
	Quote string
	// MinTakeProfits requires TP1..TPn to be present.
	MinTakeProfits int
	// AllowedProviders, when non-empty, is the provider allow-list (case-insensitive).
	AllowedProviders []string
	// RequireProvider rejects signals without a recognizable provider.
	RequireProvider bool
	// RequiredMarkers, when non-empty, requires one of them in the text (e.g. "NEW SIGNAL").
	RequiredMarkers []string
	// RequireStopLoss treats a missing stop-loss as an incomplete call.
	RequireStopLoss bool
}

// Extractor locates the fields of a TradeSignal in normalized text.
type Extractor struct {
	opts    Options
	headers []HeaderStrategy
	allowed []string // lower-cased, in configured order
	// allowedRe[i] finds allowed[i] as a whole word
	allowedRe []*regexp.Regexp
}

func NewExtractor(opts Options, headers ...HeaderStrategy) *Extractor {
	opts.Quote = strings.ToUpper(strings.TrimSpace(opts.Quote))
	if opts.MinTakeProfits < 1 {
		opts.MinTakeProfits = 1
	}
	if opts.MinTakeProfits > models.MaxTakeProfits {
		opts.MinTakeProfits = models.MaxTakeProfits
	}
	if len(headers) == 0 {
		headers = DefaultHeaderStrategies(opts.Quote)
	}
	allowed := make([]string, 0, len(opts.AllowedProviders))
	allowedRe := make([]*regexp.Regexp, 0, len(opts.AllowedProviders))
	for _, p := range opts.AllowedProviders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			allowed = append(allowed, p)
			allowedRe = append(allowedRe, regexp.MustCompile(`(?i)(?:^|[^a-z0-9_.])`+regexp.QuoteMeta(p)+`(?:$|[^a-z0-9_])`))
		}
	}
	return &Extractor{opts: opts, headers: headers, allowed: allowed, allowedRe: allowedRe}
}

// Extract returns the signal in text or one of ErrNoSignal,
// ErrProviderRejected, ErrQuoteMismatch (wrapped with detail).
func (e *Extractor) Extract(text string) (*models.TradeSignal, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoSignal
	}
	if !e.hasMarker(text) {
		return nil, errors.Wrap(ErrNoSignal, "required marker missing")
	}

	hdr, convention, ok := e.header(text)
	if !ok {
		return nil, ErrNoSignal
	}
	if hdr.Quote == "" {
		hdr.Quote = e.opts.Quote
	}
	if e.opts.Quote != "" && hdr.Quote != e.opts.Quote {
		return nil, errors.Wrapf(ErrQuoteMismatch, "%s/%s, trading %s", hdr.Base, hdr.Quote, e.opts.Quote)
	}

	provider := e.provider(text)
	if err := e.checkProvider(provider); err != nil {
		return nil, err
	}

	sig := &models.TradeSignal{
		Provider:   provider,
		Base:       hdr.Base,
		Quote:      hdr.Quote,
		Side:       hdr.Side,
		Convention: convention,
	}

	if sig.Entry, ok = entryPatterns.find(text); !ok {
		return nil, errors.Wrap(ErrNoSignal, "entry missing")
	}
	for i, fp := range takeProfitPatterns {
		sig.TakeProfits[i], _ = fp.find(text)
	}
	for i := 0; i < e.opts.MinTakeProfits; i++ {
		if sig.TakeProfits[i] <= 0 {
			return nil, errors.Wrapf(ErrNoSignal, "TP%d missing, need TP1..TP%d", i+1, e.opts.MinTakeProfits)
		}
	}

	sig.StopLoss, _ = stopPatterns.find(text)
	if e.opts.RequireStopLoss && sig.StopLoss <= 0 {
		return nil, errors.Wrap(ErrNoSignal, "stop-loss missing")
	}
	for i, fp := range averagingPatterns {
		sig.Averaging[i], _ = fp.find(text)
	}
	return sig, nil
}

func (e *Extractor) header(text string) (Header, string, bool) {
	for _, s := range e.headers {
		if h, ok := s.Match(text); ok {
			return h, s.Name(), true
		}
	}
	return Header{}, "", false
}

func (e *Extractor) hasMarker(text string) bool {
	if len(e.opts.RequiredMarkers) == 0 {
		return true
	}
	upper := strings.ToUpper(text)
	for _, m := range e.opts.RequiredMarkers {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" && strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// provider prefers an allow-listed name appearing anywhere in the text and
// falls back to a "Trader: name" style label.
func (e *Extractor) provider(text string) string {
	for i, re := range e.allowedRe {
		if re.MatchString(text) {
			return e.allowed[i]
		}
	}
	if m := providerPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(m[1], ".")
	}
	return ""
}

func (e *Extractor) checkProvider(provider string) error {
	if provider == "" {
		if e.opts.RequireProvider {
			return errors.Wrap(ErrProviderRejected, "no provider found")
		}
		return nil
	}
	if len(e.allowed) == 0 {
		return nil
	}
	if !slices.Contains(e.allowed, strings.ToLower(provider)) {
		return errors.Wrapf(ErrProviderRejected, "%q not allowed", provider)
	}
	return nil
}
