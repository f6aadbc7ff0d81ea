package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"debatechat/backend/internal/config"
	"debatechat/backend/internal/moderation"
	"debatechat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const usage = `Usage: admin <command> [args]

Commands:
  clear-chatroom <chatroom_id>   delete a chatroom's messages and reset its clients
  stats                          print waiting, prechat and chatting counts per position
  user <response_id>             print a participant's record`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command := os.Args[1]; command {
	case "clear-chatroom":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin clear-chatroom <chatroom_id>")
			os.Exit(1)
		}
		chatroomID, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			fmt.Println("Invalid chatroom ID. Please provide an integer.")
			os.Exit(1)
		}
		// Redis is needed to reach the members' open connections.
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		mod := moderation.NewService(storage.NewStorageService(db, rdb, logger), logger)
		deleted, err := mod.ClearChatroom(ctx, uint(chatroomID))
		if err != nil {
			logger.Fatal().Err(err).Uint64("chatroom_id", chatroomID).Msg("error clearing chatroom")
		}
		fmt.Printf("Chatroom %d cleared, %d messages deleted.\n", chatroomID, deleted)

	case "stats":
		stats, err := storage.NewStorageService(db, nil, logger).GetStats(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("error loading stats")
		}
		fmt.Printf("%-10s %10s %10s %10s\n", "POSITION", "WAITING", "PRECHAT", "CHATTING")
		for _, row := range stats {
			fmt.Printf("%-10s %10d %10d %10d\n", row.Position, row.Unmatched, row.Prechat, row.InChatroom)
		}

	case "user":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin user <response_id>")
			os.Exit(1)
		}
		user, err := storage.NewStorageService(db, nil, logger).GetUserByResponseID(ctx, os.Args[2])
		if err != nil {
			logger.Fatal().Err(err).Msg("error loading user")
		}
		out, err := json.MarshalIndent(user, "", "  ")
		if err != nil {
			logger.Fatal().Err(err).Msg("error encoding user")
		}
		fmt.Println(string(out))

	default:
		fmt.Printf("Unknown command %q\n\n%s\n", command, usage)
		os.Exit(1)
	}
}
