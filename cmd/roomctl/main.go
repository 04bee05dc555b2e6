// Command roomctl is a CLI client for the roomd JSON API.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/session"
)

// ---- config/session store ----

type sessionFile struct {
	SessionID string    `json:"sid"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "roomie")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "roomie")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }
func wizardPath() string  { return filepath.Join(cfgDir(), "wizard_id") }

func saveSession(sid string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(sessionPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(sessionFile{SessionID: sid, ExpiresAt: exp})
}

func loadSession() (string, error) {
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return "", err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return "", err
	}
	if sf.SessionID == "" || time.Now().After(sf.ExpiresAt) {
		return "", errors.New("no valid session (login required)")
	}
	return sf.SessionID, nil
}

func saveWizardID(id string) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(wizardPath(), []byte(strings.TrimSpace(id)), 0o600)
}

func loadWizardID() (string, error) {
	b, err := os.ReadFile(wizardPath())
	if err != nil {
		return "", errors.New("no wizard open (run wizard-start)")
	}
	return strings.TrimSpace(string(b)), nil
}

// tokenExpiry reads exp from an access token without verifying it.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, _ = jwt.NewParser(jwt.WithoutClaimsValidation()).ParseUnverified(token, &claims)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(time.Hour)
}

// ---- transport ----

func loadTLSConfig(caPath string, skipVerify bool) (*tls.Config, error) {
	if skipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

// loadTLS returns gRPC transport credentials for the ops listener. plaintext skips TLS.
func loadTLS(caPath string, skipVerify, plaintext bool) (credentials.TransportCredentials, error) {
	if plaintext {
		return insecure.NewCredentials(), nil
	}
	cfg, err := loadTLSConfig(caPath, skipVerify)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	return credentials.NewTLS(cfg), nil
}

// apiError is a non-2xx answer of roomd.
type apiError struct {
	Status  int      `json:"-"`
	Message string   `json:"error"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("api error: status=%d code=%s msg=%s", e.Status, e.Code, e.Message)
	if len(e.Missing) > 0 {
		msg += " missing=" + strings.Join(e.Missing, ", ")
	}
	return msg
}

// client talks to roomd with the saved session cookie.
type client struct {
	base string
	sid  string
	http *http.Client
}

func newClient(base, caPath string, skipVerify bool) (*client, error) {
	tlsCfg, err := loadTLSConfig(caPath, skipVerify)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsCfg
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Transport: tr, Timeout: 60 * time.Second}}, nil
}

func (c *client) send(ctx context.Context, method, path, contentType string, body io.Reader, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.sid != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.sid})
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(ae); err != nil {
			ae.Message = http.StatusText(resp.StatusCode)
		}
		return resp, ae
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode answer: %w", err)
		}
	}
	return resp, nil
}

// call sends an optional JSON body and decodes a JSON answer into out.
func (c *client) call(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	if in == nil {
		return c.send(ctx, method, path, "", nil, out)
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, "application/json", bytes.NewReader(raw), out)
}

// upload posts one file as multipart form field.
func (c *client) upload(ctx context.Context, path, field, file string, out any) error {
	data, err := readAll(file)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(file)))
	h.Set("Content-Type", contentTypeOf(file, data))
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	_, err = c.send(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf, out)
	return err
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok && s.Code() != 0 && !errors.As(err, new(*apiError)) {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `roomctl CLI
Usage:
  roomctl -api URL [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  login        -token <access> [-refresh <refresh>]   (saves session)
  logout | me
  search       [-city] [-neighborhood] [-type] [-min] [-max] [-from YYYY-MM-DD] [-amenities a,b] [-sort] [-limit] [-offset]
  listings
  wizard-start [-listing <uuid>]                     (remembers the wizard)
  draft-set    <field flags>                         (see draft-set -h)
  state | next | prev | review | publish | wizard-close
  goto         -step <n>
  photo-add    -file <path> | photo-rm -url <url>
  profile | profile-set <field flags> | avatar -file <path>
  verifications | govgr -side front|back -file <path>
  phone-start  -phone <number> | phone-confirm -code <digits>
  threads | thread-open -listing <uuid> -message <text>
  messages     -thread <uuid> | send -thread <uuid> -body <text>
  respond      -thread <uuid> -accept=true|false
  impersonate  -user <uuid> -reason <text> | impersonate-exit | banner
  pending | moderate -id <uuid> -action approve|suspend|reinstate [-reason]
  pending-verifications | decide -id <uuid> -action approve|reject|revoke [-note]
  scan-photos | activity [-since RFC3339]
  health       [-ops HOST:PORT] [-plaintext]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the API.
func main() {
	api := flag.String("api", envOr("ROOMIE_API", "http://localhost:8080"), "roomd base URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := newClient(*api, *caPath, *skipVerify)
	if err != nil {
		fail(err)
	}

	switch cmd {
	case "version":
		fmt.Printf("roomctl %s (%s)\n", version, buildDate)
	case "login":
		cmdLogin(ctx, c, args)
	case "health":
		cmdHealth(ctx, args, *caPath, *skipVerify)
	default:
		if c.sid, err = loadSession(); err != nil {
			fail(err)
		}
		run, ok := commands[cmd]
		if !ok {
			usage()
		}
		if err := run(ctx, c, args); err != nil {
			fail(err)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cmdLogin(ctx context.Context, c *client, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "access token from the auth service")
	refresh := fs.String("refresh", "", "refresh token")
	_ = fs.Parse(args)
	if *token == "" {
		fmt.Fprintln(os.Stderr, "need -token")
		os.Exit(1)
	}

	var me struct {
		Identity model.Identity `json:"identity"`
	}
	resp, err := c.call(ctx, http.MethodPost, "/auth/session", map[string]string{"access_token": *token, "refresh_token": *refresh}, &me)
	if err != nil {
		fail(err)
	}
	var sid string
	for _, ck := range resp.Cookies() {
		if ck.Name == session.CookieName {
			sid = ck.Value
		}
	}
	if sid == "" {
		fail(errors.New("server did not set a session cookie"))
	}
	if err := saveSession(sid, tokenExpiry(*token)); err != nil {
		fail(err)
	}
	fmt.Printf("signed in as %s (%s)\n", me.Identity.Email, me.Identity.Role)
}

func cmdHealth(ctx context.Context, args []string, caPath string, skipVerify bool) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("ops", "localhost:8081", "ops gRPC address")
	plaintext := fs.Bool("plaintext", false, "no TLS")
	service := fs.String("service", "", "health service name")
	_ = fs.Parse(args)

	creds, err := loadTLS(caPath, skipVerify, *plaintext)
	if err != nil {
		fail(err)
	}
	cc, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		fail(err)
	}
	fmt.Println(resp.GetStatus().String())
}
