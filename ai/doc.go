// Copyright 2025 Poiesic Systems
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


// Package ai provides abstractions for the model services used by opsmind.
//
// Two capabilities sit behind narrow interfaces:
//
//   - Embedder: text to a fixed-length vector, reporting its model and dimensionality
//   - Generator: a typed GenerateRequest to a GenerateResponse
//
// AIProvider aggregates both for lifecycle management.
//
// # Error Taxonomy
//
// Providers translate transport failures into three shapes so callers can
// decide between retrying, degrading and failing:
//
//   - *QuotaError: quota or rate limit hit, with an optional RetryAfter hint
//   - ErrUnauthorized: the credential was rejected (a configuration error)
//   - anything else: an ordinary failure
//
// Use IsQuota to test for the first shape through wrapping.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo over OpenAI-compatible APIs (Ollama, vLLM, OpenAI)
//   - ai/openaisdk: generation through the official openai-go SDK
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithAPIKey(key))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "How many sick days do I get?")
//	resp, err := provider.Generator().Generate(ctx, ai.GenerateRequest{Prompt: prompt})
package ai
