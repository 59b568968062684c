package client

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/icholy/digest"
)

// DefaultTR064Port is the plain-HTTP TR-064 port of FRITZ!Box routers.
const DefaultTR064Port = "49000"

const descriptionPath = "/tr64desc.xml"

// APIError represents a non-2xx HTTP response that is not a SOAP fault.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ActionError is a UPnP error returned by the router in a SOAP fault.
type ActionError struct {
	Service     string
	Action      string
	Code        int
	Description string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s#%s: UPnP error %d: %s", e.Service, e.Action, e.Code, e.Description)
}

// ErrUnknownService is returned when the router does not advertise the requested service.
var ErrUnknownService = errors.New("unknown service")

// Service is one entry of the router's TR-064 service list.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// Name returns the short service name, e.g. "DeviceInfo1".
func (s Service) Name() string {
	i := strings.LastIndex(s.ServiceID, ":")
	return s.ServiceID[i+1:]
}

// Description holds the parts of tr64desc.xml we care about.
type Description struct {
	FriendlyName string
	ModelName    string
	Services     []Service
}

type rootDescription struct {
	Device device `xml:"device"`
}

type device struct {
	FriendlyName string    `xml:"friendlyName"`
	ModelName    string    `xml:"modelName"`
	Services     []Service `xml:"serviceList>service"`
	Devices      []device  `xml:"deviceList>device"`
}

func (d device) collect(out []Service) []Service {
	out = append(out, d.Services...)
	for _, sub := range d.Devices {
		out = sub.collect(out)
	}
	return out
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

// WithTransport sets the base round tripper that digest auth wraps.
func WithTransport(rt http.RoundTripper) RouterOption {
	return func(r *Router) {
		r.transport = rt
	}
}

// Router is a TR-064 SOAP session with a FRITZ!Box.
type Router struct {
	baseURL    *url.URL
	user       string
	password   string
	timeout    time.Duration
	transport  http.RoundTripper
	httpClient *http.Client
	desc       *Description
}

// NewRouter creates a session for address, which may be a bare host ("192.168.178.1"),
// host:port, or a full URL. The TR-064 port is used when none is given.
// Requests use HTTP digest authentication when user is non-empty.
func NewRouter(address, user, password string, opts ...RouterOption) (*Router, error) {
	base, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	r := &Router{
		baseURL:   base,
		user:      user,
		password:  password,
		timeout:   30 * time.Second,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(r)
	}
	rt := r.transport
	if user != "" {
		rt = &digest.Transport{
			Username:  user,
			Password:  password,
			Transport: r.transport,
		}
	}
	r.httpClient = &http.Client{Timeout: r.timeout, Transport: rt}
	return r, nil
}

// NormalizeAddress turns a router address into a base URL with scheme and port.
func NormalizeAddress(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("router address required")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid router address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid router address %q", address)
	}
	if u.Port() == "" && u.Scheme == "http" {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultTR064Port)
	}
	u.Path = ""
	u.RawQuery = ""
	return u, nil
}

// BaseURL returns the router's base URL.
func (r *Router) BaseURL() string {
	return r.baseURL.String()
}

// Describe fetches and caches the router's TR-064 device description.
func (r *Router) Describe(ctx context.Context) (*Description, error) {
	if r.desc != nil {
		return r.desc, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.resolve(descriptionPath), nil)
	if err != nil {
		return nil, err
	}
	body, status, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: truncate(body)}
	}
	var root rootDescription
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode %s: %w", descriptionPath, err)
	}
	r.desc = &Description{
		FriendlyName: root.Device.FriendlyName,
		ModelName:    root.Device.ModelName,
		Services:     root.Device.collect(nil),
	}
	return r.desc, nil
}

// Service looks up a service by name. "DeviceInfo:1" and "DeviceInfo1" are equivalent.
func (r *Router) Service(ctx context.Context, name string) (Service, error) {
	desc, err := r.Describe(ctx)
	if err != nil {
		return Service{}, err
	}
	want := NormalizeServiceName(name)
	for _, s := range desc.Services {
		if s.Name() == want {
			return s, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
}

// NormalizeServiceName maps "DeviceInfo:1" to "DeviceInfo1".
func NormalizeServiceName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), ":", "")
}

// CallAction invokes action on the named service and returns its output arguments.
func (r *Router) CallAction(ctx context.Context, serviceName, action string, args map[string]string) (map[string]string, error) {
	svc, err := r.Service(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	envelope := buildEnvelope(svc.ServiceType, action, args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.resolve(svc.ControlURL), bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%s#%s", svc.ServiceType, action))

	body, status, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		if f, ok := parseFault(body); ok {
			return nil, &ActionError{
				Service:     serviceName,
				Action:      action,
				Code:        f.Detail.UPnPError.ErrorCode,
				Description: f.Detail.UPnPError.ErrorDescription,
			}
		}
		return nil, &APIError{StatusCode: status, Body: truncate(body)}
	}
	return parseActionResponse(body, action)
}

func (r *Router) do(req *http.Request) ([]byte, int, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (r *Router) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return r.baseURL.String() + path
	}
	return r.baseURL.ResolveReference(ref).String()
}

func buildEnvelope(serviceType, action string, args map[string]string) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/" xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">`)
	b.WriteString(`<s:Body>`)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, serviceType)
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "<%s>", k)
		_ = xml.EscapeText(&b, []byte(args[k]))
		fmt.Fprintf(&b, "</%s>", k)
	}
	fmt.Fprintf(&b, `</u:%s>`, action)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.Bytes()
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		UPnPError struct {
			ErrorCode        int    `xml:"errorCode"`
			ErrorDescription string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

func parseFault(body []byte) (*soapFault, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Fault" {
			var f soapFault
			if err := dec.DecodeElement(&f, &se); err != nil {
				return nil, false
			}
			return &f, true
		}
	}
}

// parseActionResponse collects the children of <{action}Response> as name -> text.
func parseActionResponse(body []byte, action string) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	want := action + "Response"
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("missing %s element in response", want)
		}
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != want {
			continue
		}
		out := map[string]string{}
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", want, err)
			}
			switch t := tok.(type) {
			case xml.StartElement:
				var v struct {
					Text string `xml:",chardata"`
				}
				if err := dec.DecodeElement(&v, &t); err != nil {
					return nil, fmt.Errorf("decode %s: %w", t.Name.Local, err)
				}
				out[t.Name.Local] = v.Text
			case xml.EndElement:
				return out, nil
			}
		}
	}
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
