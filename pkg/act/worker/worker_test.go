package worker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mnemonic-no/act-api-go/pkg/act"
	"github.com/mnemonic-no/act-api-go/pkg/act/acttest"
	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/validation"

	"github.com/matryer/is"
)

func offline(t *testing.T) *act.Act {
	a, err := act.New(act.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func factStrings(facts []*act.Fact) []string {
	s := make([]string, 0, len(facts))
	for _, f := range facts {
		s = append(s, f.String())
	}
	return s
}

func TestURIFactsWithFQDN(t *testing.T) {
	is := is.New(t)

	uri := "http://www.mnemonic.no/home"

	facts, err := URIFacts(context.Background(), offline(t), uri)
	is.NoErr(err)
	is.Equal(factStrings(facts), []string{
		"(fqdn/www.mnemonic.no) -[componentOf]-> (uri/" + uri + ")",
		"(uri/" + uri + ") -[scheme/http]",
		"(path//home) -[componentOf]-> (uri/" + uri + ")",
		"(path//home) -[basename/home]",
	})
}

func TestURIFactsWithIPv4AndPort(t *testing.T) {
	is := is.New(t)

	uri := "http://127.0.0.1:8080/home"

	facts, err := URIFacts(context.Background(), offline(t), uri)
	is.NoErr(err)
	is.Equal(len(facts), 5)
	is.Equal(facts[0].String(), "(ipv4/127.0.0.1) -[componentOf]-> (uri/"+uri+")")
	is.Equal(facts[1].String(), "(uri/"+uri+") -[port/8080]")
}

func TestURIFactsWithIPv6(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	uri := "http://[2001:67c:21e0::16]"

	facts, err := URIFacts(ctx, offline(t), uri)
	is.NoErr(err)
	is.Equal(len(facts), 2)
	is.Equal(facts[0].String(), "(ipv6/2001:067c:21e0:0000:0000:0000:0000:0016) -[componentOf]-> (uri/"+uri+")")

	uri = "http://[2001:67c:21e0::16]:8080/path?q=a"

	facts, err = URIFacts(ctx, offline(t), uri)
	is.NoErr(err)
	is.Equal(len(facts), 6)
	is.Equal(facts[5].String(), "(query/q=a) -[componentOf]-> (uri/"+uri+")")
}

func TestURIFactsRequireSchemeAndAddress(t *testing.T) {
	is := is.New(t)

	for _, uri := range []string{"www.mnemonic.no/home", "http:///home", "file:home"} {
		_, err := URIFacts(context.Background(), offline(t), uri)
		is.True(errors.Is(err, acterrors.ErrValidation)) // uri without scheme or address
	}
}

func TestIPObject(t *testing.T) {
	is := is.New(t)

	typ, addr, err := IPObject(" 127.0.0.1 ")
	is.NoErr(err)
	is.Equal(typ, "ipv4")
	is.Equal(addr, "127.0.0.1")

	typ, addr, err = IPObject("2001:67c:21e0::16")
	is.NoErr(err)
	is.Equal(typ, "ipv6")
	is.Equal(addr, "2001:067c:21e0:0000:0000:0000:0000:0016")

	_, _, err = IPObject("127.0.0.256")
	is.True(errors.Is(err, acterrors.ErrValidation))
}

func TestHandlerWritesEachFactOnce(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	out := &bytes.Buffer{}
	h, err := NewFactHandler(out, Format(FormatStr))
	is.NoErr(err)

	is.NoErr(HandleURI(ctx, offline(t), h, "http://www.mnemonic.no/home"))
	is.NoErr(HandleURI(ctx, offline(t), h, "http://www.mnemonic.no/home"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	is.Equal(len(lines), 4)
	is.Equal(lines[1], "(uri/http://www.mnemonic.no/home) -[scheme/http]")
	is.Equal(h.Len(), 4)
}

func TestURIFactsWithIPv6PassDefaultValidation(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	v, err := validation.NewDefaultValidator(ctx)
	is.NoErr(err)

	a, err := act.New(act.Config{ObjectValidator: v, StrictValidator: true})
	is.NoErr(err)

	uri := "http://[2001:db8::1]/home"

	facts, err := URIFacts(ctx, a, uri)
	is.NoErr(err)
	is.Equal(facts[0].String(), "(ipv6/2001:0db8:0000:0000:0000:0000:0000:0001) -[componentOf]-> (uri/"+uri+")")
}

// slowWriter counts the lines written to it and takes its time doing so.
type slowWriter struct {
	mu    sync.Mutex
	lines int
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(50 * time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines += strings.Count(string(p), "\n")

	return len(p), nil
}

func TestConcurrentHandlersWriteFactOnce(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	out := &slowWriter{}
	h, _ := NewFactHandler(out, Format(FormatStr))

	f, _ := offline(t).Fact(ctx, "scheme", act.Value("http"), act.Source("uri", "http://a"))

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Handle(ctx, f)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		is.NoErr(err)
	}

	is.Equal(out.lines, 1) // the second caller must see the fact as handled
}

func TestHandlerWritesJSON(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	out := &bytes.Buffer{}
	h, _ := NewFactHandler(out)

	f, _ := offline(t).Fact(ctx, "scheme", act.Value("http"), act.Source("uri", "http://www.mnemonic.no/home"))
	is.NoErr(h.Handle(ctx, f))

	is.Equal(out.String(), `{"accessMode":"RoleBased","bidirectionalBinding":false,"sourceObject":{"type":"uri","value":"http://www.mnemonic.no/home"},"type":"scheme","value":"http"}`+"\n")
}

func TestHandlerForgetsOldestFact(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	out := &bytes.Buffer{}
	h, _ := NewFactHandlerWithSize(out, 1, Format(FormatStr))

	a := offline(t)
	f1, _ := a.Fact(ctx, "scheme", act.Value("http"), act.Source("uri", "http://a"))
	f2, _ := a.Fact(ctx, "scheme", act.Value("http"), act.Source("uri", "http://b"))

	is.NoErr(h.Handle(ctx, f1))
	is.NoErr(h.Handle(ctx, f2))
	is.NoErr(h.Handle(ctx, f1))

	is.Equal(strings.Count(out.String(), "\n"), 3)
}

func TestHandlerRejectsUnknownFormat(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	h, _ := NewFactHandler(&bytes.Buffer{}, Format("xml"))

	f, _ := offline(t).Fact(ctx, "scheme", act.Value("http"), act.Source("uri", "http://a"))
	is.True(errors.Is(h.Handle(ctx, f), acterrors.ErrArgument))
}

func TestHandlerSubmitsToPlatform(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	p := acttest.New(ctx)
	defer p.Close()

	for _, name := range []string{"uri", "fqdn", "path"} {
		p.AddObjectType(name)
	}
	for _, name := range []string{"componentOf", "scheme", "basename"} {
		p.AddFactType(name)
	}

	a, err := act.New(act.Config{BaseURL: p.URL(), UserID: "1"})
	is.NoErr(err)

	out := &bytes.Buffer{}
	h, _ := NewFactHandler(out)

	facts, err := URIFacts(ctx, a, "http://www.mnemonic.no/home")
	is.NoErr(err)

	for _, f := range facts {
		is.NoErr(h.Handle(ctx, f))
		is.NoErr(h.Handle(ctx, f))
	}

	is.Equal(len(p.Facts()), 4)
	is.Equal(out.Len(), 0)

	// the handled facts are copies
	is.Equal(facts[0].ID(), "")
}
