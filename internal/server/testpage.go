// Package server serves a self-contained HTML page for exercising the chat
// protocol end to end from a browser.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// TestPageHandler serves an HTML page that joins a room, sends chat messages
// and typing notifications, and renders everything the relay broadcasts.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Warn("error writing test page", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chatterbox Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 720px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #typing { color: gray; font-style: italic; min-height: 1.2em; }
        #sidebar { color: #555; margin: 5px 0; }
    </style>
</head>
<body>
    <h1>Chatterbox Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Username" value="">
        <input type="text" id="roomInput" placeholder="Room" value="general">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>

    <div id="sidebar">Online: <span id="online">0</span> &mdash; <span id="users"></span></div>
    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let typingTimer = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'black';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                ws.send(JSON.stringify({
                    username: document.getElementById('usernameInput').value,
                    room: document.getElementById('roomInput').value
                }));
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                for (const line of event.data.split('\n')) {
                    if (line) { handleEvent(JSON.parse(line)); }
                }
            };

            ws.onclose = function() {
                addMessage('Connection closed', 'gray');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addMessage('Connection error', 'red');
                updateStatus(false);
            };
        }

        function handleEvent(msg) {
            switch (msg.type) {
            case 'system':
                addMessage('[' + msg.timestamp + '] ' + msg.message, 'gray');
                break;
            case 'chat':
                addMessage('[' + msg.timestamp + '] ' + msg.username + ': ' + msg.message, 'green');
                break;
            case 'typing':
                document.getElementById('typing').textContent =
                    msg.users.length ? msg.users.join(', ') + ' typing...' : '';
                break;
            case 'stats':
                document.getElementById('online').textContent = msg.online;
                break;
            case 'user_list':
                document.getElementById('users').textContent = msg.users.join(', ');
                break;
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'chat', message: text}));
                addMessage('You: ' + text, 'blue');
                messageInput.value = '';
                stopTyping();
            }
        }

        function stopTyping() {
            if (typingTimer) { clearTimeout(typingTimer); typingTimer = null; }
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'stop_typing'}));
            }
        }

        messageInput.addEventListener('input', function() {
            if (!ws || ws.readyState !== WebSocket.OPEN) { return; }
            ws.send(JSON.stringify({type: 'typing'}));
            if (typingTimer) { clearTimeout(typingTimer); }
            typingTimer = setTimeout(stopTyping, 2000);
        });

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
