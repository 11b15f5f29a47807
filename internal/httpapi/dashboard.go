package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Dupeguard</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --accent-2: #e88a3d;
      --danger: #c2483f;
      --muted: #6f7d7d;
      --shadow: 0 18px 36px rgba(16, 34, 35, 0.16);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }

    header { display: flex; align-items: baseline; gap: 16px; margin-bottom: 18px; }
    header h1 { margin: 0; font-size: 1.6rem; }
    header .mode { color: var(--muted); font-size: 0.9rem; }

    .grid { display: grid; gap: 16px; grid-template-columns: repeat(auto-fit, minmax(340px, 1fr)); }

    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      box-shadow: var(--shadow);
      padding: 16px;
    }
    .card h2 { margin: 0 0 12px; font-size: 1.05rem; }

    label { display: block; font-size: 0.85rem; color: var(--muted); margin-top: 8px; }
    input[type=text], input[type=number], input[type=password] {
      width: 100%; padding: 7px 9px; border: 1px solid var(--line); border-radius: 8px; background: var(--paper);
    }
    button {
      margin-top: 12px; padding: 8px 14px; border: 0; border-radius: 8px;
      background: var(--accent); color: #fff; font-weight: 600; cursor: pointer;
    }
    button.secondary { background: var(--accent-2); }
    button.danger { background: var(--danger); }

    table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
    th, td { text-align: left; padding: 6px 4px; border-bottom: 1px solid var(--line); }
    .muted { color: var(--muted); }
    .error { color: var(--danger); }
    #events { font-family: ui-monospace, Menlo, monospace; font-size: 0.8rem; max-height: 260px; overflow: auto; }
  </style>
</head>
<body>
  <header>
    <h1>Dupeguard</h1>
    <span class="mode" id="status">checking connection...</span>
  </header>

  <div class="grid">
    <section class="card">
      <h2>Settings</h2>
      <label>Admin token <input type="password" id="token" placeholder="only needed when auth is enabled" /></label>
      <label>Search window (days) <input type="number" id="searchDays" min="1" max="365" /></label>
      <label>Tag name <input type="text" id="tagName" /></label>
      <label>Tag color <input type="text" id="tagColor" /></label>
      <label><input type="checkbox" id="autoCancel" /> Cancel duplicates automatically</label>
      <label><input type="checkbox" id="webhookEnabled" /> Check new orders from webhooks</label>
      <button id="save">Save settings</button>
      <div id="settingsMsg" class="muted"></div>
    </section>

    <section class="card">
      <h2>Scan</h2>
      <label><input type="checkbox" id="dryRun" /> Dry run (detect only)</label>
      <button id="scan">Find duplicates</button>
      <div id="scanMsg" class="muted"></div>
      <table>
        <thead><tr><th>Phone</th><th>Unfulfilled</th><th>Duplicates</th></tr></thead>
        <tbody id="decisions"></tbody>
      </table>
    </section>

    <section class="card">
      <h2>Canceled duplicates</h2>
      <button class="secondary" id="refresh">Refresh</button>
      <table>
        <thead><tr><th>Order</th><th>Phone</th><th>Canceled</th><th></th></tr></thead>
        <tbody id="canceled"></tbody>
      </table>
    </section>

    <section class="card">
      <h2>Live scans</h2>
      <div id="events" class="muted">waiting for events...</div>
    </section>
  </div>

  <script>
    const $ = (id) => document.getElementById(id);
    $("token").value = localStorage.getItem("dupeguard.token") || "";
    $("token").addEventListener("change", () => localStorage.setItem("dupeguard.token", $("token").value));

    async function api(method, path, body) {
      const headers = { "Content-Type": "application/json" };
      const token = $("token").value.trim();
      if (token) headers["Authorization"] = "Bearer " + token;
      const res = await fetch(path, { method, headers, body: body ? JSON.stringify(body) : undefined });
      const data = await res.json().catch(() => ({}));
      if (!res.ok || data.success === false) throw new Error(data.message || res.statusText);
      return data;
    }

    async function loadSettings() {
      const { settings } = await api("GET", "/api/settings");
      $("searchDays").value = settings.searchDays;
      $("tagName").value = settings.tagName;
      $("tagColor").value = settings.tagColor;
      $("autoCancel").checked = settings.autoCancel;
      $("webhookEnabled").checked = settings.webhookEnabled;
    }

    $("save").onclick = async () => {
      try {
        await api("POST", "/api/settings", {
          searchDays: Number($("searchDays").value),
          tagName: $("tagName").value,
          tagColor: $("tagColor").value,
          autoCancel: $("autoCancel").checked,
          webhookEnabled: $("webhookEnabled").checked,
        });
        $("settingsMsg").textContent = "saved";
      } catch (err) {
        $("settingsMsg").textContent = err.message;
      }
    };

    $("scan").onclick = async () => {
      $("scanMsg").textContent = "scanning...";
      try {
        const out = await api("POST", "/api/find-duplicates", {
          searchDays: Number($("searchDays").value),
          dryRun: $("dryRun").checked,
        });
        $("scanMsg").textContent = out.message + (out.failed.length ? " (failed: " + out.failed.join(", ") + ")" : "");
        $("decisions").innerHTML = out.details.map((d) =>
          "<tr><td>" + d.phone + "</td><td>" + d.unfulfilledOrder + "</td><td>" + d.duplicates.join(", ") + "</td></tr>").join("");
        loadCanceled();
      } catch (err) {
        $("scanMsg").textContent = err.message;
      }
    };

    async function loadCanceled() {
      try {
        const out = await api("GET", "/api/orders/canceled-duplicates");
        $("canceled").innerHTML = out.canceledOrders.map((o) =>
          "<tr><td>" + o.name + "</td><td>" + o.phone + "</td><td>" + (o.canceledAt || "") +
          "</td><td><button class=\"danger\" data-id=\"" + o.id + "\">Reopen</button></td></tr>").join("");
      } catch (err) {
        $("canceled").innerHTML = "<tr><td colspan=4 class=error>" + err.message + "</td></tr>";
      }
    }
    $("refresh").onclick = loadCanceled;
    $("canceled").onclick = async (ev) => {
      const id = ev.target.dataset && ev.target.dataset.id;
      if (!id) return;
      try {
        await api("POST", "/api/orders/" + id + "/reopen", { removeTag: true });
      } catch (err) {
        alert(err.message);
      }
      loadCanceled();
    };

    function connectEvents() {
      const proto = location.protocol === "https:" ? "wss://" : "ws://";
      const token = $("token").value.trim();
      const ws = new WebSocket(proto + location.host + "/api/events" + (token ? "?token=" + encodeURIComponent(token) : ""));
      ws.onmessage = (msg) => {
        const t = JSON.parse(msg.data);
        const line = document.createElement("div");
        line.textContent = t.at + " " + t.trigger + " " + t.scanId.slice(0, 8) + " " + t.from + " -> " + t.to + (t.detail ? " (" + t.detail + ")" : "");
        if ($("events").classList.contains("muted")) { $("events").textContent = ""; $("events").classList.remove("muted"); }
        $("events").prepend(line);
      };
      ws.onclose = () => setTimeout(connectEvents, 3000);
    }

    api("GET", "/api/test-shopify")
      .then((out) => { $("status").textContent = out.message; })
      .catch((err) => { $("status").textContent = err.message; });
    loadSettings().catch((err) => { $("settingsMsg").textContent = err.message; });
    loadCanceled();
    connectEvents();
  </script>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
