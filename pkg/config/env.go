// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local then .env into the process environment.
// Variables already set are never overridden.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// envVarPattern matches ${VAR}, ${VAR:-default}, and $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if name, def, ok := strings.Cut(inner, ":-"); ok {
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}

func expandEnvVars(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = expandValue(v)
	}
	return result
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}

// FromEnv builds a configuration from the service's environment variables:
//
//	OPENAI_<ROLE>_BASE_URL, OPENAI_<ROLE>_API_KEY, OPENAI_<ROLE>_MODEL
//	CHROMA_HOST, CHROMA_PORT, CHROMA_DATABASE, CHROMA_COLLECTION_PREFIX
//	TAVILY_API_KEY, QUIZ_TOOLS_QUESTIONS, QUIZ_TOOLS_RESPONSES, PORT
//
// Defaults are applied; the result is not validated.
func FromEnv() *Config {
	cfg := &Config{}

	for _, role := range Roles {
		prefix := "OPENAI_" + strings.ToUpper(role) + "_"
		m := cfg.Models.Get(role)
		m.Provider = LLMProviderOpenAI
		m.BaseURL = os.Getenv(prefix + "BASE_URL")
		m.APIKey = os.Getenv(prefix + "API_KEY")
		m.Model = os.Getenv(prefix + "MODEL")
	}

	cfg.Store.Type = StoreChroma
	cfg.Store.Chroma.Host = os.Getenv("CHROMA_HOST")
	cfg.Store.Chroma.Port = envInt("CHROMA_PORT", 0)
	cfg.Store.Chroma.Database = os.Getenv("CHROMA_DATABASE")
	cfg.Store.CollectionPrefix = os.Getenv("CHROMA_COLLECTION_PREFIX")

	cfg.WebSearch.APIKey = os.Getenv("TAVILY_API_KEY")
	cfg.Tools.Questions = envBool("QUIZ_TOOLS_QUESTIONS")
	cfg.Tools.Responses = envBool("QUIZ_TOOLS_RESPONSES")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logger.Level = level
	}

	cfg.SetDefaults()
	return cfg
}

func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return v
	}
	return def
}

func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}
