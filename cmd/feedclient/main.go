// Command feedclient loads the feed page from a running feedserver, hydrates
// a local query client from it, prints the feed as it changes and optionally
// signs in and posts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/internal/feed"
	"github.com/goliatone/go-querysync/internal/rpc"
	"github.com/goliatone/go-querysync/internal/web"
	"github.com/goliatone/go-querysync/pkg/di"
	"github.com/goliatone/go-querysync/querysync"
)

func main() {
	var (
		server  = flag.String("server", "http://localhost:3000", "feedserver base URL")
		user    = flag.String("user", "", "sign in as this username before posting")
		profile = flag.String("profile", "", "also print the profile of this username")
		post    = flag.String("post", "", "post this content")
		verbose = flag.Bool("v", false, "log query activity")
	)
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, logger, *server, *user, *profile, *post); err != nil {
		logger.Error().Err(err).Msg("feedclient failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger, server, user, profile, post string) error {
	server = strings.TrimRight(server, "/")
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	hc := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	if user != "" {
		if err := signIn(ctx, hc, server, user); err != nil {
			return err
		}
	}

	state, err := loadState(ctx, hc, server+"/")
	if err != nil {
		return err
	}

	container, err := di.NewContainerWithDefaults(di.WithLogger(logger))
	if err != nil {
		return err
	}
	client, err := container.NewClient(
		querysync.WithTransport(rpc.NewClient(server+"/api", rpc.WithHTTPClient(hc))),
		querysync.WithRules(feed.Rules()),
	)
	if err != nil {
		return err
	}
	if err := client.Hydrate(state); err != nil {
		return err
	}

	view := web.NewFeedView(client, os.Stdout)
	stop := view.Mount(ctx)
	defer stop()

	if profile != "" {
		params, ok := web.ResolveProfile(profile)
		if !ok {
			fmt.Print("404\n")
		} else {
			sig, fetch := client.Query(feed.QueryUserByUsername, params)
			fmt.Print(web.FormatProfile(client.Fetch(ctx, sig, fetch)))
		}
	}

	if post == "" {
		return nil
	}

	before := len(view.Statuses())
	composer := web.NewComposer(client)
	composer.SetInput(post)
	if res := composer.Submit(ctx); !res.OK() {
		fmt.Println(composer.Error())
		return nil
	}
	return waitForRefetch(ctx, view, before)
}

func signIn(ctx context.Context, hc *http.Client, server, username string) error {
	body := strings.NewReader(fmt.Sprintf(`{"username":%q}`, username))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/auth/signin", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sign in: %s", resp.Status)
	}
	return nil
}

func loadState(ctx context.Context, hc *http.Client, pageURL string) (cache.DehydratedState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return cache.DehydratedState{}, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := hc.Do(req)
	if err != nil {
		return cache.DehydratedState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cache.DehydratedState{}, fmt.Errorf("load %s: %s", pageURL, resp.Status)
	}
	return web.ExtractState(resp.Body)
}

// waitForRefetch waits until the feed view has rendered the refetch that
// follows a successful post.
func waitForRefetch(ctx context.Context, view *web.FeedView, before int) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		statuses := view.Statuses()
		if len(statuses) >= before+2 && statuses[len(statuses)-1].Settled() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
