// treectl is a CLI tool for walking tree checkout sessions against the
// widget API. Each command performs a single operation, making it
// composable for scripts.
//
// Commands:
//
//	treectl create
//	treectl get -id <session-id>
//	treectl trees -id <session-id>
//	treectl select -id <session-id> -product ID -variant ID
//	treectl products -id <session-id>
//	treectl pick -id <session-id> -product ID -variant ID
//	treectl next|prev -id <session-id>
//	treectl jump -id <session-id> -step N
//	treectl delivery -id <session-id> -date YYYY-MM-DD [-slot SLOT] [-note TEXT]
//	treectl line -id <session-id> -line ID -qty N
//	treectl dismiss -id <session-id> -notice ID
//	treectl reset -id <session-id>
//	treectl sizes
//
// Examples:
//
//	ID=$(treectl create -q)
//	treectl select -id $ID -product gid://shopify/Product/7119040610384 -variant gid://shopify/ProductVariant/1002
//	treectl next -id $ID
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tree-checkout/internal/checkout"
	"tree-checkout/internal/clientcompat"
	"tree-checkout/internal/handler"
	"tree-checkout/internal/model"
	"tree-checkout/internal/steps"
)

var client = &http.Client{Timeout: 90 * time.Second}

// Global flags (apply to all commands)
var (
	apiURL        string
	clientVersion string
	quiet         bool
	noColor       bool
	verbose       bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		runCreate(args)
	case "get":
		runGet(args)
	case "trees":
		runTrees(args)
	case "select":
		runSelect(args)
	case "products":
		runProducts(args)
	case "pick":
		runPick(args)
	case "next", "prev":
		runMove(cmd, args)
	case "jump":
		runJump(args)
	case "delivery":
		runDelivery(args)
	case "line":
		runLine(args)
	case "dismiss":
		runDismiss(args)
	case "reset":
		runReset(args)
	case "sizes":
		runSizes(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `treectl - tree checkout session tool

Usage:
  treectl <command> [options]

Commands:
  create    Start a checkout session
  get       Show session state
  trees     List the trees on the product screen
  select    Choose a tree and enter the step sequence
  products  List what the current step offers
  pick      Choose a product on the current step
  next      Advance (hands off to checkout from the summary)
  prev      Go back a step
  jump      Move to a step already reached
  delivery  Set delivery date, time slot and notes
  line      Set a cart line quantity (0 removes)
  dismiss   Dismiss a notice
  reset     Start a new order in the session
  sizes     Show the tree size and price table

Examples:
  # Create a session and capture its ID
  ID=$(treectl create -q)

  # Pick the tree, then walk the steps
  treectl select -id "$ID" -product gid://shopify/Product/7119040610384 -variant gid://shopify/ProductVariant/1004
  treectl products -id "$ID"
  treectl next -id "$ID"

  # Delivery preferences
  treectl delivery -id "$ID" -date 2025-12-20 -slot "Morning (9am - 12pm)" -note "Ring twice"

Run 'treectl <command> -h' for command-specific options.
`)
}

// =============================================================================
// FLAGS
// =============================================================================

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&apiURL, "api", envOr("TREECTL_API", "http://localhost:8080"), "Widget API base URL")
	fs.StringVar(&clientVersion, "client-version", envOr("TREECTL_CLIENT_VERSION", "1.0.0"), "Version sent in the Widget-Client header")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: treectl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and exits with usage when a required flag is empty.
func parse(fs *flag.FlagSet, args []string, required ...*string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	for _, v := range required {
		if *v == "" {
			fs.Usage()
			os.Exit(1)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sessionPath(id string, rest ...string) string {
	p := "/sessions/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runCreate(args []string) {
	fs := newFlagSet("create", "create [options]")
	parse(fs, args)

	var resp handler.SessionResponse
	if err := doRequest("POST", "/sessions", nil, &resp); err != nil {
		fatal("Failed to create session: %v", err)
	}

	if quiet {
		fmt.Println(resp.ID)
		return
	}
	printSuccess("Session created")
	fmt.Printf("  ID: %s%s%s\n", colorCyan, resp.ID, colorReset)
}

func runGet(args []string) {
	fs := newFlagSet("get", "get -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	var resp handler.SessionResponse
	if err := doRequest("GET", sessionPath(id), nil, &resp); err != nil {
		fatal("Failed to get session: %v", err)
	}

	if quiet {
		fmt.Println(resp.State.Mode)
		return
	}
	printSuccess("Session retrieved")
	printState(resp.State)
}

func runReset(args []string) {
	fs := newFlagSet("reset", "reset -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	var resp handler.SessionResponse
	if err := doRequest("POST", sessionPath(id, "reset"), nil, &resp); err != nil {
		fatal("Failed to reset session: %v", err)
	}
	printSuccess("New order started")
	printState(resp.State)
}

// =============================================================================
// PRODUCT SCREEN
// =============================================================================

func runTrees(args []string) {
	fs := newFlagSet("trees", "trees -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	var resp struct {
		Products []model.Product `json:"products"`
	}
	if err := doRequest("GET", sessionPath(id, "base-products"), nil, &resp); err != nil {
		fatal("Failed to list trees: %v", err)
	}
	printProducts(resp.Products)
}

func runSelect(args []string) {
	fs := newFlagSet("select", "select -id <session-id> -product ID -variant ID [options]")
	var id string
	var req handler.SelectRequest
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&req.ProductID, "product", "", "Tree product ID (required)")
	fs.StringVar(&req.VariantID, "variant", "", "Size variant ID (required)")
	parse(fs, args, &id, &req.ProductID, &req.VariantID)

	action(sessionPath(id, "base-product"), req, "Tree selected")
}

// =============================================================================
// STEP SEQUENCE
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "products -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	var resp steps.StepProducts
	if err := doRequest("GET", sessionPath(id, "step", "products"), nil, &resp); err != nil {
		fatal("Failed to load step products: %v", err)
	}
	if resp.Eligibility != "" {
		printInfo("%s for %s %s", resp.Eligibility, resp.Selection.TreeType, resp.Selection.Size)
	}
	if resp.CallForPricing {
		printWarning("Please contact us for pricing on this option.")
	}
	if len(resp.Products) == 0 {
		printInfo("Nothing to choose on this step")
	}
	printProducts(resp.Products)
}

func runPick(args []string) {
	fs := newFlagSet("pick", "pick -id <session-id> -product ID -variant ID [options]")
	var id string
	var req handler.SelectRequest
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&req.ProductID, "product", "", "Product ID (required)")
	fs.StringVar(&req.VariantID, "variant", "", "Variant ID (required)")
	parse(fs, args, &id, &req.ProductID, &req.VariantID)

	action(sessionPath(id, "step", "select"), req, "Product selected")
}

func runMove(cmd string, args []string) {
	fs := newFlagSet(cmd, cmd+" -id <session-id> [options]")
	var id string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	parse(fs, args, &id)

	action(sessionPath(id, "step", cmd), nil, "Moved")
}

func runJump(args []string) {
	fs := newFlagSet("jump", "jump -id <session-id> -step N [options]")
	var id, step string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&step, "step", "", "Step index, 0-based (required)")
	parse(fs, args, &id, &step)

	n, err := strconv.Atoi(step)
	if err != nil {
		fatal("Invalid step %q", step)
	}
	action(sessionPath(id, "step", "jump"), handler.JumpRequest{Step: n}, "Moved")
}

func runDelivery(args []string) {
	fs := newFlagSet("delivery", "delivery -id <session-id> -date YYYY-MM-DD [-slot SLOT] [-note TEXT] [options]")
	var id string
	var req handler.DeliveryRequest
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&req.Date, "date", "", "Delivery date, YYYY-MM-DD (required)")
	fs.StringVar(&req.Slot, "slot", "", "Delivery time preference")
	fs.StringVar(&req.Instructions, "note", "", "Delivery instructions")
	parse(fs, args, &id, &req.Date)

	var resp checkout.State
	if err := doRequest("PUT", sessionPath(id, "delivery"), req, &resp); err != nil {
		fatal("Failed to set delivery: %v", err)
	}
	printSuccess("Delivery preferences saved")
	printState(resp)
}

// =============================================================================
// LINES AND NOTICES
// =============================================================================

func runLine(args []string) {
	fs := newFlagSet("line", "line -id <session-id> -line ID -qty N [options]")
	var id, line string
	var qty int
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&line, "line", "", "Cart line ID (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity; 0 removes the line")
	parse(fs, args, &id, &line)

	path := sessionPath(id, "lines", url.PathEscape(line))
	var resp checkout.State
	var err error
	if qty <= 0 {
		err = doRequest("DELETE", path, nil, &resp)
	} else {
		err = doRequest("PATCH", path, handler.LineRequest{Quantity: qty}, &resp)
	}
	if err != nil {
		fatal("Failed to update line: %v", err)
	}
	printSuccess("Cart updated")
	printState(resp)
}

func runDismiss(args []string) {
	fs := newFlagSet("dismiss", "dismiss -id <session-id> -notice ID [options]")
	var id, notice string
	fs.StringVar(&id, "id", "", "Session ID (required)")
	fs.StringVar(&notice, "notice", "", "Notice ID (required)")
	parse(fs, args, &id, &notice)

	if err := doRequest("DELETE", sessionPath(id, "notices", url.PathEscape(notice)), nil, nil); err != nil {
		fatal("Failed to dismiss notice: %v", err)
	}
	printSuccess("Notice dismissed")
}

func runSizes(args []string) {
	fs := newFlagSet("sizes", "sizes [options]")
	parse(fs, args)

	var resp struct {
		Trees []handler.TreeSizes `json:"trees"`
	}
	if err := doRequest("GET", "/sizes", nil, &resp); err != nil {
		fatal("Failed to load sizes: %v", err)
	}
	for _, t := range resp.Trees {
		fmt.Printf("%s%s%s\n", colorBold, t.TreeType, colorReset)
		for _, s := range t.Sizes {
			price := model.FormatCents(s.Price)
			if s.CallForPricing {
				price = colorYellow + "call for pricing" + colorReset
			}
			fmt.Printf("  %-7s %s\n", s.Size, price)
		}
	}
}

// action posts a screen action and prints its outcome.
func action(path string, body any, success string) {
	var resp handler.ActionResponse
	if err := doRequest("POST", path, body, &resp); err != nil {
		fatal("%v", err)
	}

	if resp.Outcome.RedirectURL != "" {
		if quiet {
			fmt.Println(resp.Outcome.RedirectURL)
			return
		}
		printSuccess("Ready for checkout")
		fmt.Printf("  Checkout: %s%s%s\n", colorCyan, resp.Outcome.RedirectURL, colorReset)
		return
	}
	if quiet {
		fmt.Println(resp.Outcome.Step)
		return
	}
	printSuccess("%s", success)
	if n := resp.Outcome.Notice; n != nil {
		printNotice(*n)
	}
	printState(resp.State)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// apiError is the server's error envelope.
type apiError struct {
	Error struct {
		Code      string   `json:"code"`
		Message   string   `json:"message"`
		Reasons   []string `json:"reasons"`
		Retryable bool     `json:"retryable"`
	} `json:"error"`
}

func doRequest(method, path string, body, out any) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, apiURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	header, err := clientcompat.FormatHeader(clientcompat.Client{Version: clientVersion, Build: "treectl"})
	if err != nil {
		return fmt.Errorf("client version: %w", err)
	}
	req.Header.Set(clientcompat.Header, header)

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// responseError turns an error envelope into the buyer message.
func responseError(status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	msg := e.Error.Message
	if len(e.Error.Reasons) > 0 {
		msg += " (" + strings.Join(e.Error.Reasons, "; ") + ")"
	}
	if e.Error.Retryable {
		msg += " [retryable]"
	}
	return errors.New(msg)
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	if verbose {
		printJSON(body, "  ")
	}
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printState(st checkout.State) {
	if quiet {
		return
	}
	fmt.Printf("  Mode: %s%s%s\n", colorCyan, st.Mode, colorReset)
	if st.Selection != nil {
		fmt.Printf("  Tree: %s %s\n", st.Selection.TreeType, st.Selection.Size)
	}
	if st.Mode == checkout.ModeInStepSequence {
		seq := st.Sequence
		fmt.Printf("  Step: %d/%d %s%s%s\n", seq.Index+1, len(seq.Steps), colorBold, seq.Step.Title, colorReset)
		if seq.Blocked != "" {
			printWarning("%s", seq.Blocked)
		}
		for _, n := range seq.Notices {
			printNotice(n)
		}
		for _, t := range seq.Tasks {
			if t.Status != steps.TaskDone {
				fmt.Printf("%s  … %s %s%s\n", colorGray, t.VariantID, t.Status, colorReset)
			}
		}
	}
	if st.CartError != "" {
		printError("%s", st.CartError)
	}
	if s := st.Summary; s != nil {
		for _, item := range s.Items {
			fmt.Printf("    %-40s %s\n", item.Name, model.FormatCents(item.Price))
		}
		fmt.Printf("  Total: %s%s%s\n", colorGreen, model.FormatCents(s.Total), colorReset)
	}
	if st.RedirectURL != "" {
		fmt.Printf("  Checkout: %s%s%s\n", colorCyan, st.RedirectURL, colorReset)
	}
}

func printProducts(products []model.Product) {
	for _, p := range products {
		fmt.Printf("%s%s%s  %s%s%s\n", colorBold, p.Name, colorReset, colorGray, p.ID, colorReset)
		for _, v := range p.Variants {
			avail := ""
			if !v.AvailableForSale {
				avail = colorRed + " (sold out)" + colorReset
			}
			fmt.Printf("  %-14s %-10s %s%s%s%s\n", v.Label, model.FormatCents(p.BasePrice+v.PriceModifier), colorGray, v.ID, colorReset, avail)
		}
	}
}

func printNotice(n steps.Notice) {
	if n.Blocking {
		printError("%s", n.Message)
		return
	}
	printWarning("%s %s[%s]%s", n.Message, colorGray, n.ID, colorReset)
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
