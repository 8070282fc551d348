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


// Package stream delivers answers to clients as a sequence of frames.
//
// A delivery is zero or more content frames whose payloads concatenate to the
// answer text, followed by exactly one sources frame and exactly one done
// frame. Nothing is sent after done. On the wire each frame is a Server-Sent
// Events record:
//
//	data: {"type":"content","data":"Sick leave is "}
//
// Session enforces the ordering for any Sink. SSEWriter is the HTTP sink and
// ReadFrames parses a recorded stream back into frames.
package stream
