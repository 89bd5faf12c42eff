// Command kafka-producer publishes synthetic plays to the score feed topic so
// the live feed of every node can be exercised without real clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/kafka"
	"github.com/spf13/pflag"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

var beatmapNames = []string{
	"Kenji Ninuma - DISCO PRINCE [Normal]",
	"xi - FREEDOM DiVE [FOUR DIMENSIONS]",
	"Camellia - Exit This Earth's Atomosphere [Evolution]",
	"DragonForce - Through the Fire and Flames [Legend]",
}

var modCombos = []domain.Mods{
	domain.ModNone,
	domain.ModHidden,
	domain.ModHardRock,
	domain.ModHidden | domain.ModDoubleTime,
}

func playerName(idx int) string {
	return fmt.Sprintf("%s%d", playerPrefixes[idx%len(playerPrefixes)], idx/len(playerPrefixes)+1)
}

// syntheticPlay builds a plausible feed event; low player indexes get the better plays
func syntheticPlay(node string, players int) domain.ScoreEvent {
	var idx int
	if rand.Intn(100) < 70 {
		idx = rand.Intn(min(20, players))
	} else {
		idx = rand.Intn(players)
	}
	skill := 1 - float64(idx)/float64(players)

	mode := domain.Modes[rand.Intn(len(domain.Modes))]
	bm := rand.Intn(len(beatmapNames))
	return domain.ScoreEvent{
		Node:              node,
		UserID:            int64(idx + 1000),
		Username:          playerName(idx),
		Mode:              mode.String(),
		BeatmapID:         int32(bm + 75),
		BeatmapName:       beatmapNames[bm],
		Mods:              modCombos[rand.Intn(len(modCombos))].String(),
		TotalScore:        int64(200000 + rand.Intn(800000)*int(skill*10+1)/11),
		Accuracy:          0.85 + 0.15*skill*rand.Float64(),
		PerformancePoints: 50 + 400*skill*rand.Float64(),
		Rank:              int64(idx + 1),
		Timestamp:         time.Now(),
	}
}

func main() {
	brokers := pflag.StringSlice("brokers", []string{"localhost:9094"}, "Kafka brokers")
	topic := pflag.String("topic", "bancho-scores", "Score feed topic")
	node := pflag.String("node", "loadgen", "Node id stamped on the events")
	players := pflag.Int("players", 1000, "Number of distinct players")
	rate := pflag.Int("rate", 10, "Plays per second")
	duration := pflag.Duration("duration", 0, "Duration to run (0 = until interrupted)")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if *players <= 0 || *rate <= 0 {
		logger.Error("players and rate must be positive")
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	cfg.Kafka.Brokers = *brokers
	cfg.Kafka.Topic = *topic

	producer, err := kafka.NewProducer(&cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("publishing synthetic plays",
		"brokers", *brokers,
		"topic", *topic,
		"players", *players,
		"rate", *rate,
	)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var sent, failed int
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped", "sent", sent, "failed", failed)
			return

		case <-ticker.C:
			if err := producer.PublishScore(ctx, syntheticPlay(*node, *players)); err != nil {
				failed++
				continue
			}
			sent++

		case <-statsTicker.C:
			logger.Info("progress", "sent", sent, "failed", failed)
		}
	}
}
