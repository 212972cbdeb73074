// Command channelctl runs one peer of a game channel: it hosts (serve) or
// joins (join) a channel over whichever Transport the config selects,
// wiring together every package in this module the way a real deployment
// would.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"gochannel/internal/auth"
	"gochannel/internal/chain"
	"gochannel/internal/channel"
	"gochannel/internal/config"
	"gochannel/internal/logging"
	"gochannel/internal/replication"
	"gochannel/internal/rules"
	"gochannel/internal/snapshot"
	"gochannel/internal/transport"
	"gochannel/internal/transport/grpctransport"
)

func main() {
	mode := flag.String("mode", "serve", "serve | join | inspect")
	gameID := flag.String("game", "", "game id (required for serve|join)")
	peerID := flag.String("peer", "", "this process's peer id (required for serve|join)")
	remoteURL := flag.String("remote", "", "join mode: URL (ws(s):// or host:port for grpc) of the peer to dial")
	ticket := flag.String("ticket", "", "join mode: admission ticket issued by the remote peer")
	frameHex := flag.String("frame", "", "inspect mode: hex-encoded wire frame to decode (reads stdin if empty)")
	flag.Parse()

	//1.- inspect needs none of serve/join's game/peer/ticket machinery —
	// it only decodes a frame someone already captured off the wire — so
	// it is handled before any of that setup runs.
	if *mode == "inspect" {
		runInspect(*frameHex)
		return
	}

	if *gameID == "" || *peerID == "" {
		fmt.Fprintln(os.Stderr, "-game and -peer flags are required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		log = logging.NewTestLogger()
	}

	if cfg.TicketKey == "" {
		fmt.Fprintln(os.Stderr, "CHANNEL_TICKET_KEY must be set")
		os.Exit(1)
	}
	verifier, err := auth.NewTicketVerifier(cfg.TicketKey, 5*time.Second)
	if err != nil {
		log.Fatal("ticket verifier init failed", logging.Error(err))
	}
	issuer, err := auth.NewTicketIssuer(cfg.TicketKey, 5*time.Minute)
	if err != nil {
		log.Fatal("ticket issuer init failed", logging.Error(err))
	}

	ch := newChannel(*gameID, cfg, log)
	checkpointer := snapshot.NewCheckpointer(cfg.SnapshotDir, cfg.SnapshotMoveThreshold, cfg.SnapshotTimeThreshold, cfg.SnapshotCompressMoves)
	session := replication.NewSession(ch, cfg.AckWatchdogTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("selected transport", logging.String("transport", string(cfg.Transport)))
	switch cfg.Transport {
	case config.TransportGRPC:
		runGRPC(ctx, cfg, log, verifier, issuer, session, *mode, *gameID, *peerID, *remoteURL, *ticket)
	default:
		runWebsocket(ctx, cfg, log, verifier, issuer, session, *mode, *gameID, *peerID, *remoteURL, *ticket)
	}

	//1.- Persist a final snapshot on the way out, regardless of how the
	// session ended, so a restart resumes from the last applied move.
	if err := checkpointer.Write(*gameID, ch.LatestSnapshot()); err != nil {
		log.Error("final snapshot write failed", logging.Error(err))
	}
}

func newChannel(gameID string, cfg *config.Config, log *logging.Logger) *channel.GameChannel {
	mode := chain.Strict
	if cfg.SigningMode == config.SigningModeRelaxed {
		mode = chain.Relaxed
	}
	oracle := rules.NewDefaultOracle()
	ch := channel.New(gameID, cfg.BoardSize, oracle, mode)

	if snap, ok, err := snapshot.Load(cfg.SnapshotDir, gameID); err != nil {
		log.Warn("snapshot load failed, starting empty", logging.String("game_id", gameID), logging.Error(err))
	} else if ok {
		ch.LoadSnapshot(snap)
		log.Info("resumed from snapshot", logging.String("game_id", gameID), logging.Int("moves", len(snap.Moves)))
	}
	return ch
}

// runWebsocket wires the websocket Transport for either mode: "serve" hosts
// an HTTP listener and prints an admission ticket; "join" dials out.
func runWebsocket(ctx context.Context, cfg *config.Config, log *logging.Logger, verifier *auth.TicketVerifier, issuer *auth.TicketIssuer, session *replication.Session, mode, gameID, localPeerID, remoteURL, ticket string) {
	wt := transport.NewWebsocketTransport(verifier, issuer, log)
	defer wt.Close()

	switch mode {
	case "serve":
		mux := http.NewServeMux()
		mux.Handle("/", wt)
		server := &http.Server{Addr: cfg.Address, Handler: mux}

		go func() {
			log.Info("channel listening", logging.String("addr", cfg.Address), logging.String("game_id", gameID))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", logging.Error(err))
			}
		}()

		go printJoinInstructions(issuer, localPeerID, gameID, log)
		pumpAndWait(ctx, log, wt, session)
		server.Close()
	case "join":
		if remoteURL == "" || ticket == "" {
			fmt.Fprintln(os.Stderr, "join mode requires -remote and -ticket")
			os.Exit(1)
		}
		remotePeerID, err := wt.DialAndJoin(ctx, remoteURL, ticket)
		if err != nil {
			log.Fatal("join failed", logging.Error(err))
		}
		session.AddPeer(remotePeerID)
		log.Info("joined channel", logging.String("remote_peer_id", remotePeerID))
		pumpAndWait(ctx, log, wt, session)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q\n", mode)
		os.Exit(1)
	}
}

// runGRPC wires the hand-wired gRPC Link Transport for either mode,
// mirroring runWebsocket's shape: a grpc.Server in place of an http.Server,
// a grpc.ClientConn in place of a websocket dial.
func runGRPC(ctx context.Context, cfg *config.Config, log *logging.Logger, verifier *auth.TicketVerifier, issuer *auth.TicketIssuer, session *replication.Session, mode, gameID, localPeerID, remoteURL, ticket string) {
	gt := grpctransport.NewTransport(verifier, log)
	defer gt.Close()

	switch mode {
	case "serve":
		lis, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			log.Fatal("grpc listen failed", logging.Error(err))
		}
		grpcServer := grpc.NewServer()
		grpctransport.RegisterReplicationServer(grpcServer, gt)

		go func() {
			log.Info("channel listening", logging.String("addr", cfg.Address), logging.String("game_id", gameID))
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("grpc server error", logging.Error(err))
			}
		}()

		go printJoinInstructions(issuer, localPeerID, gameID, log)
		pumpAndWait(ctx, log, gt, session)
		grpcServer.GracefulStop()
	case "join":
		if remoteURL == "" || ticket == "" {
			fmt.Fprintln(os.Stderr, "join mode requires -remote and -ticket")
			os.Exit(1)
		}
		cc, err := grpc.NewClient(remoteURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatal("grpc dial failed", logging.Error(err))
		}
		remotePeerID, err := gt.ConnectByTicket(ctx, ticket)
		if err != nil {
			log.Fatal("ticket rejected", logging.Error(err))
		}
		if err := gt.Dial(ctx, cc, remotePeerID, ticket); err != nil {
			log.Fatal("join failed", logging.Error(err))
		}
		session.AddPeer(remotePeerID)
		log.Info("joined channel", logging.String("remote_peer_id", remotePeerID))
		pumpAndWait(ctx, log, gt, session)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q\n", mode)
		os.Exit(1)
	}
}

// runInspect decodes one length-prefixed replication wire frame and
// prints its DebugJSON rendering — a read-only debugging aid, never
// used by the wire protocol itself. frameHex may be empty, in which case
// the frame is read as a hex string from stdin.
func runInspect(frameHex string) {
	raw := strings.TrimSpace(frameHex)
	if raw == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "reading frame from stdin:", err)
			os.Exit(1)
		}
		raw = strings.TrimSpace(string(data))
	}

	frame, err := hex.DecodeString(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid hex frame:", err)
		os.Exit(1)
	}

	out, err := replication.InspectFrame(frame)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decoding frame failed:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func printJoinInstructions(issuer *auth.TicketIssuer, localPeerID, gameID string, log *logging.Logger) {
	ticket, err := issuer.Issue(localPeerID, gameID)
	if err != nil {
		log.Error("issuing join ticket failed", logging.Error(err))
		return
	}
	fmt.Fprintf(os.Stdout, "join ticket for %s/%s: %s\n", gameID, localPeerID, ticket)
}

// pumpAndWait drains the transport's single inbound channel into the
// session and, once the transport reports a peer, polls that peer's
// outbound queue — also reading stdin so an operator can submit moves as
// "x y color" / "pass" / "resign" lines, in the spirit of the teacher's
// own small interactive tools. It is written against the Transport
// interface so either wire implementation can drive it.
func pumpAndWait(ctx context.Context, log *logging.Logger, tr transport.Transport, session *replication.Session) {
	drainTicker := time.NewTicker(20 * time.Millisecond)
	defer drainTicker.Stop()

	knownPeers := make(map[string]struct{})
	stdinLines := make(chan string, 8)
	go readStdinLines(stdinLines)

	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-tr.Recv():
			if !ok {
				return
			}
			if _, seen := knownPeers[in.PeerID]; !seen {
				knownPeers[in.PeerID] = struct{}{}
				session.AddPeer(in.PeerID)
			}
			if err := session.DeliverInbound(in.PeerID, in.Payload); err != nil {
				log.Warn("dropping malformed inbound frame", logging.String("peer_id", in.PeerID), logging.Error(err))
			}
		case line := <-stdinLines:
			if mv, ok := parseMoveLine(line); ok {
				if err := session.SubmitLocal(mv); err != nil {
					log.Warn("move rejected", logging.Error(err))
				}
			}
		case <-drainTicker.C:
			for peerID := range knownPeers {
				for {
					payload, ok := session.DrainOutbound(peerID)
					if !ok {
						break
					}
					if err := tr.Send(peerID, payload); err != nil {
						log.Warn("send failed", logging.String("peer_id", peerID), logging.Error(err))
						break
					}
				}
			}
		}
	}
}

func readStdinLines(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// parseMoveLine accepts "x y color" (e.g. "3 4 black"), "pass", or
// "resign" from an operator driving the channel interactively.
func parseMoveLine(line string) (rules.Move, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	switch {
	case len(fields) == 0:
		return rules.Move{}, false
	case fields[0] == "pass":
		return rules.PassMove(), true
	case fields[0] == "resign":
		return rules.ResignMove(), true
	case len(fields) == 3:
		x, errX := strconv.Atoi(fields[0])
		y, errY := strconv.Atoi(fields[1])
		if errX != nil || errY != nil || x < 0 || x > 255 || y < 0 || y > 255 {
			return rules.Move{}, false
		}
		var color rules.Color
		switch fields[2] {
		case "black", "b":
			color = rules.Black
		case "white", "w":
			color = rules.White
		default:
			return rules.Move{}, false
		}
		return rules.PlaceMove(uint8(x), uint8(y), color), true
	default:
		return rules.Move{}, false
	}
}
