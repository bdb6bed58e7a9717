/*
 * Copyright 2026 Threatwire Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/threatwire/threatwire/pkg/authgate"
	"github.com/threatwire/threatwire/pkg/config"
	"github.com/threatwire/threatwire/pkg/lifecycle"
	"github.com/threatwire/threatwire/pkg/logger"
	"github.com/threatwire/threatwire/pkg/models"
	"github.com/threatwire/threatwire/pkg/version"
)

func main() {
	configPath := flag.String("config", "/etc/threatwire/authgate.json", "Path to auth gate config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		os.Exit(0)
	}

	ctx := context.Background()

	lg, err := logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	lg.Info().Str("version", version.Version()).Msg("Starting auth gate")

	var cfg models.AuthGateConfig
	if err := config.NewConfig(lg).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		lg.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := lifecycle.Run(ctx, authgate.NewService(&cfg, lg), lg); err != nil {
		lg.Fatal().Err(err).Msg("Auth gate failed")
	}
}
